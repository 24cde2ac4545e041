package categories

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
)

var header = []string{"merchant", "category"}

// ReadMappings reads a merchant,category CSV. Keys are normalized; later rows win.
func ReadMappings(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading categories CSV: %w", err)
	}

	mappings := make(map[string]string)
	if len(records) == 0 {
		return mappings, nil
	}
	for _, rec := range records[1:] {
		key, category := Key(rec[0]), normalizeCategory(rec[1])
		if key == "" || category == "" {
			continue
		}
		mappings[key] = category
	}
	return mappings, nil
}

// WriteMappings writes mappings sorted by merchant.
func WriteMappings(w io.Writer, mappings map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if err := cw.Write([]string{k, mappings[k]}); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

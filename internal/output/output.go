// Package output renders command results for the terminal.
package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/cleared-dev/mailledger/internal/categories"
	"github.com/cleared-dev/mailledger/internal/ingest"
	"github.com/cleared-dev/mailledger/internal/ledger"
	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/normalize"
	"github.com/cleared-dev/mailledger/internal/runlog"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

const timeLayout = "2006-01-02 15:04"

// Header prints a section title.
func Header(w io.Writer, text string) {
	green.Fprintf(w, "%s\n%s\n", text, strings.Repeat("=", len([]rune(text))))
}

// Success prints a success message.
func Success(w io.Writer, format string, args ...any) {
	green.Fprintf(w, "  → %s\n", fmt.Sprintf(format, args...))
}

// Info prints an informational line.
func Info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  → %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning.
func Warning(w io.Writer, format string, args ...any) {
	yellow.Fprintf(w, "  ⚠ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error.
func Error(w io.Writer, err error) {
	red.Fprintf(w, "Error: %s\n", err)
}

// RunResult prints the counts of a sync or backfill run. With details set,
// every message that was not persisted is listed.
func RunResult(w io.Writer, res ingest.Result, details bool) {
	green.Fprintf(w, "Processed: %d\n", res.Processed)
	fmt.Fprintf(w, "Skipped:   %d (duplicates %d, unrecognized %d)\n", res.Skipped, res.Duplicates, res.Unrecognized)
	if res.Errors > 0 {
		red.Fprintf(w, "Errors:    %d\n", res.Errors)
	} else {
		fmt.Fprintf(w, "Errors:    %d\n", res.Errors)
	}
	if !details {
		return
	}
	for _, mr := range res.Messages {
		switch mr.Outcome {
		case ingest.OutcomeUnparseable:
			red.Fprintf(w, "  %s %s: %v\n", mr.Outcome, mr.UID, mr.Err)
		case ingest.OutcomeUnrecognized, ingest.OutcomeDuplicate:
			faint.Fprintf(w, "  %s %s\n", mr.Outcome, mr.UID)
		}
	}
}

// Transactions prints a table of records with shortened ids.
func Transactions(w io.Writer, txns []model.Transaction) error {
	if len(txns) == 0 {
		Info(w, "no transactions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tINSTITUTION\tCARD\tMERCHANT\tAMOUNT\tCATEGORY")
	for _, t := range txns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ShortID(t.GlobalID),
			t.Timestamp.Format(timeLayout),
			t.Institution,
			t.PaymentInstrument,
			t.Merchant,
			normalize.FormatAmount(t.Amount, t.Currency),
			t.Category,
		)
	}
	return tw.Flush()
}

// Transaction prints every field of one record.
func Transaction(w io.Writer, t model.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"ID", t.GlobalID},
		{"Date", t.Timestamp.Format(timeLayout + " MST")},
		{"Merchant", t.Merchant},
		{"Amount", normalize.FormatAmount(t.Amount, t.Currency) + " " + string(t.Currency)},
		{"Institution", t.Institution},
		{"Card", t.PaymentInstrument},
		{"Category", t.Category},
		{"Notes", t.Notes},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

// Summary prints grouped counts and per-currency totals.
func Summary(w io.Writer, s ledger.Summary) error {
	if s.Count == 0 {
		Info(w, "ledger is empty")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTITUTION\tCURRENCY\tCATEGORY\tCOUNT\tTOTAL")
	for _, g := range s.Groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", g.Institution, g.Currency, g.Category, g.Count, normalize.FormatAmount(g.Total, g.Currency))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, section := range []struct {
		title   string
		rollups []ledger.Rollup
	}{
		{"BY INSTITUTION", s.ByInstitution},
		{"BY CURRENCY", s.ByCurrency},
		{"BY CATEGORY", s.ByCategory},
	} {
		fmt.Fprintln(w)
		if err := rollups(w, section.title, section.rollups); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	for _, c := range model.Currencies {
		if total, ok := s.Totals[c]; ok {
			green.Fprintf(w, "Total %s: %s\n", c, normalize.FormatAmount(total, c))
		}
	}
	fmt.Fprintf(w, "Transactions: %d\n", s.Count)
	return nil
}

func rollups(w io.Writer, title string, rs []ledger.Rollup) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tCOUNT\tTOTAL\n", title)
	for _, r := range rs {
		var totals []string
		for _, c := range model.Currencies {
			if total, ok := r.Totals[c]; ok {
				totals = append(totals, normalize.FormatAmount(total, c))
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Key, r.Count, strings.Join(totals, " + "))
	}
	return tw.Flush()
}

// Runs prints the sync run history.
func Runs(w io.Writer, entries []runlog.Entry) error {
	if len(entries) == 0 {
		Info(w, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tMODE\tPROCESSED\tSKIPPED\tERRORS\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", e.Timestamp.Format(timeLayout), e.Mode, e.Processed, e.Skipped, e.Errors, e.Detail)
	}
	return tw.Flush()
}

// Mappings prints learned merchant categories.
func Mappings(w io.Writer, mappings []categories.Mapping) error {
	if len(mappings) == 0 {
		Info(w, "no categories learned yet")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MERCHANT\tCATEGORY")
	for _, m := range mappings {
		fmt.Fprintf(tw, "%s\t%s\n", m.Merchant, m.Category)
	}
	return tw.Flush()
}

// ShortID abbreviates a global id for tables.
func ShortID(globalID string) string {
	if len(globalID) <= 12 {
		return globalID
	}
	return globalID[:12]
}

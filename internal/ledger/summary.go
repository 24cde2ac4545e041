package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/mailledger/internal/model"
)

// Uncategorized is the summary bucket for records without a category.
const Uncategorized = "uncategorized"

// Group aggregates records sharing institution, currency and category.
type Group struct {
	Institution string
	Currency    model.Currency
	Category    string
	Count       int
	Total       decimal.Decimal
}

// Rollup aggregates records sharing a single dimension. Totals are kept per
// currency since amounts in different currencies are never added together.
type Rollup struct {
	Key    string
	Count  int
	Totals map[model.Currency]decimal.Decimal
}

// Summary is the result of a full-ledger scan.
type Summary struct {
	Count         int
	Groups        []Group
	Totals        map[model.Currency]decimal.Decimal
	ByInstitution []Rollup
	ByCurrency    []Rollup
	ByCategory    []Rollup
}

// Summary aggregates every record. Groups are sorted by institution,
// currency, then category; rollups by key.
func (r *Repository) Summary() (Summary, error) {
	txns, err := r.load()
	if err != nil {
		return Summary{}, err
	}
	return Summarize(txns), nil
}

// Summarize aggregates txns.
func Summarize(txns []model.Transaction) Summary {
	type key struct {
		institution string
		currency    model.Currency
		category    string
	}
	groups := map[key]*Group{}
	byInstitution := rollups{}
	byCurrency := rollups{}
	byCategory := rollups{}
	s := Summary{Totals: map[model.Currency]decimal.Decimal{}}

	for _, txn := range txns {
		category := txn.Category
		if category == "" {
			category = Uncategorized
		}
		k := key{txn.Institution, txn.Currency, category}
		g, ok := groups[k]
		if !ok {
			g = &Group{Institution: k.institution, Currency: k.currency, Category: k.category}
			groups[k] = g
		}
		g.Count++
		g.Total = g.Total.Add(txn.Amount)
		byInstitution.add(txn.Institution, txn)
		byCurrency.add(string(txn.Currency), txn)
		byCategory.add(category, txn)
		s.Totals[txn.Currency] = s.Totals[txn.Currency].Add(txn.Amount)
		s.Count++
	}

	for _, g := range groups {
		s.Groups = append(s.Groups, *g)
	}
	sort.Slice(s.Groups, func(i, j int) bool {
		a, b := s.Groups[i], s.Groups[j]
		if a.Institution != b.Institution {
			return a.Institution < b.Institution
		}
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		return a.Category < b.Category
	})
	s.ByInstitution = byInstitution.sorted()
	s.ByCurrency = byCurrency.sorted()
	s.ByCategory = byCategory.sorted()
	return s
}

type rollups map[string]*Rollup

func (m rollups) add(k string, txn model.Transaction) {
	r, ok := m[k]
	if !ok {
		r = &Rollup{Key: k, Totals: map[model.Currency]decimal.Decimal{}}
		m[k] = r
	}
	r.Count++
	r.Totals[txn.Currency] = r.Totals[txn.Currency].Add(txn.Amount)
}

func (m rollups) sorted() []Rollup {
	out := make([]Rollup, 0, len(m))
	for _, r := range m {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Filter selects records for listing. Zero fields match everything.
type Filter struct {
	Institution string
	Category    string // Uncategorized matches records without a category
	Since       time.Time
	Until       time.Time // exclusive
}

// Match reports whether txn passes the filter.
func (f Filter) Match(txn model.Transaction) bool {
	if f.Institution != "" && !strings.EqualFold(f.Institution, txn.Institution) {
		return false
	}
	if f.Category != "" {
		category := txn.Category
		if category == "" {
			category = Uncategorized
		}
		if !strings.EqualFold(f.Category, category) {
			return false
		}
	}
	if !f.Since.IsZero() && txn.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !txn.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Select returns the records of txns matching f, in order.
func Select(txns []model.Transaction, f Filter) []model.Transaction {
	var out []model.Transaction
	for _, txn := range txns {
		if f.Match(txn) {
			out = append(out, txn)
		}
	}
	return out
}

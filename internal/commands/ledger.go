package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/mailledger/internal/ledger"
	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/normalize"
	"github.com/cleared-dev/mailledger/internal/output"
	"github.com/cleared-dev/mailledger/internal/parsers"
)

func newListCommand(g *globals) *cobra.Command {
	var (
		institution, category string
		since, until          string
		asJSON                bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			f := ledger.Filter{Institution: institution, Category: category}
			if since != "" {
				if f.Since, err = normalize.ParseDate(since, e.loc); err != nil {
					return err
				}
			}
			if until != "" {
				day, err := normalize.ParseDate(until, e.loc)
				if err != nil {
					return err
				}
				f.Until = day.AddDate(0, 0, 1)
			}

			txns, err := e.ledger.ListAll()
			if err != nil {
				return err
			}
			txns = ledger.Select(txns, f)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if txns == nil {
					txns = []model.Transaction{}
				}
				return enc.Encode(txns)
			}
			return output.Transactions(cmd.OutOrStdout(), txns)
		},
	}

	cmd.Flags().StringVar(&institution, "institution", "", "only this institution")
	cmd.Flags().StringVar(&category, "category", "", "only this category ("+ledger.Uncategorized+" for none)")
	cmd.Flags().StringVar(&since, "since", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "last day, inclusive (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transaction (an unambiguous id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			gid, err := e.resolveID(args[0])
			if err != nil {
				return err
			}
			txn, err := e.ledger.Get(gid)
			if err != nil {
				return err
			}
			return output.Transaction(cmd.OutOrStdout(), txn)
		},
	}
}

type updateFlags struct {
	merchant, amount, currency, date string
	institution, card, notes         string
	category                         string
}

func newUpdateCommand(g *globals) *cobra.Command {
	var f updateFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a transaction; its id never changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			gid, err := e.resolveID(args[0])
			if err != nil {
				return err
			}
			txn, err := e.ledger.Get(gid)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, e, &txn); err != nil {
				return err
			}

			updated, err := e.ledger.Update(gid, txn)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("category") && updated.HasCategory() {
				if err := e.categories.Set(updated.Merchant, updated.Category); err != nil {
					return fmt.Errorf("learning category: %w", err)
				}
			}

			output.Success(cmd.OutOrStdout(), "Updated %s", output.ShortID(gid))
			e.commit(cmd, "update: "+output.ShortID(gid))
			return nil
		},
	}

	cmd.Flags().StringVar(&f.merchant, "merchant", "", "merchant name")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&f.currency, "currency", "", "currency code (USD or CRC)")
	cmd.Flags().StringVar(&f.date, "date", "", "date and time, e.g. 2025-01-05 10:00")
	cmd.Flags().StringVar(&f.institution, "institution", "", "institution")
	cmd.Flags().StringVar(&f.card, "card", "", "last four digits of the card")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&f.category, "category", "", "category (empty to clear)")
	return cmd
}

// apply copies every flag the user set onto txn.
func (f updateFlags) apply(cmd *cobra.Command, e *env, txn *model.Transaction) error {
	changed := cmd.Flags().Changed
	if changed("merchant") {
		txn.Merchant = normalize.Merchant(f.merchant)
	}
	if changed("amount") {
		amount, err := normalize.ParseAmount(f.amount)
		if err != nil {
			return err
		}
		txn.Amount = amount
	}
	if changed("currency") {
		c, err := model.ParseCurrency(f.currency)
		if err != nil {
			return err
		}
		txn.Currency = c
	}
	if changed("date") {
		ts, err := normalize.ParseDateTime(f.date, e.loc)
		if err != nil {
			return err
		}
		txn.Timestamp = ts
	}
	if changed("institution") {
		inst := strings.TrimSpace(f.institution)
		if s := e.registry().Get(inst); s != nil {
			inst = s.Institution()
		}
		txn.Institution = inst
	}
	if changed("card") {
		txn.PaymentInstrument = strings.TrimSpace(f.card)
	}
	if changed("notes") {
		txn.Notes = f.notes
	}
	if changed("category") {
		txn.Category = strings.TrimSpace(f.category)
	}
	if !anyChanged(cmd, "merchant", "amount", "currency", "date", "institution", "card", "notes", "category") {
		return errors.New("nothing to update: pass at least one field flag")
	}
	return nil
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}

func newDeleteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			gid, err := e.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := e.ledger.Delete(gid); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "Deleted %s", output.ShortID(gid))
			e.commit(cmd, "delete: "+output.ShortID(gid))
			return nil
		},
	}
}

func newSummaryCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Totals by institution, currency and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			s, err := e.ledger.Summary()
			if err != nil {
				return err
			}
			return output.Summary(cmd.OutOrStdout(), s)
		},
	}
}

func newInstitutionsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "institutions",
		Short: "List supported institutions in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := locationFor(g)
			if err != nil {
				return err
			}
			for i, name := range parsers.DefaultRegistry(loc).Institutions() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, name)
			}
			return nil
		},
	}
}

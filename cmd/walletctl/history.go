package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

type historyFlags struct {
	Account int64
	Limit   int
}

type historyRunner struct {
	s     *session
	flags *historyFlags
}

func newHistoryCmd(s *session) *cobra.Command {
	flags := &historyFlags{}
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "List an account's most recent ledger records",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &historyRunner{s: s, flags: flags}
			return runner.Run(cmd)
		},
	}
	cmd.Flags().Int64VarP(&flags.Account, "account", "a", 0, "account id")
	cmd.Flags().IntVarP(&flags.Limit, "limit", "l", 20, "maximum number of records to display")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func (r *historyRunner) Run(cmd *cobra.Command) error {
	txs, total, err := r.s.app.Engine.History(cmd.Context(), r.flags.Account, ledger.Page{Limit: r.flags.Limit})
	if err != nil {
		return fmt.Errorf("failed to get transactions: %w", err)
	}
	if len(txs) == 0 {
		pterm.Warning.Println("No transactions found")
		return nil
	}

	pterm.DefaultSection.Printf("Account %d: showing %d of %d records", r.flags.Account, len(txs), total)
	table := pterm.TableData{{"ID", "Date", "Type", "Amount", "Counterparty"}}
	for _, tx := range txs {
		table = append(table, []string{
			strconv.FormatInt(tx.ID, 10),
			tx.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			string(tx.Type),
			signed(tx),
			counterparty(tx),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}

func signed(tx domain.Transaction) string {
	if tx.Type.Credit() {
		return "+" + tx.Amount.StringFixed(2)
	}
	return "-" + tx.Amount.StringFixed(2)
}

func counterparty(tx domain.Transaction) string {
	if tx.CounterpartyAccountID == nil {
		return "-"
	}
	return strconv.FormatInt(*tx.CounterpartyAccountID, 10)
}

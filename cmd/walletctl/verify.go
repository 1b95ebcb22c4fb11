package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type verifyRunner struct {
	s       *session
	account int64
}

func newVerifyCmd(s *session) *cobra.Command {
	r := &verifyRunner{s: s}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay ledger records and compare them with stored balances",
		Long: `Replay every ledger record of an account (deposits and incoming
transfers minus withdrawals and outgoing transfers) and compare the result
with the stored balance. Without --account every account is checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Run(cmd)
		},
	}
	cmd.Flags().Int64VarP(&r.account, "account", "a", 0, "check a single account")
	return cmd
}

func (r *verifyRunner) Run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	ids := []int64{r.account}
	if r.account == 0 {
		var err error
		if ids, err = r.s.app.Store.ListAccountIDs(ctx); err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
	}
	if len(ids) == 0 {
		pterm.Warning.Println("No accounts found")
		return nil
	}

	table := pterm.TableData{{"Account", "Stored", "Replayed", "Records", "Status"}}
	drifted := 0
	for _, id := range ids {
		rec, err := r.s.app.Engine.Verify(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to verify account %d: %w", id, err)
		}
		status := pterm.Green("OK")
		if !rec.Balanced() {
			status = pterm.Red("DRIFT")
			drifted++
		}
		table = append(table, []string{
			strconv.FormatInt(id, 10),
			rec.Stored.String(),
			rec.Replayed.String(),
			strconv.Itoa(rec.Records),
			status,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		return err
	}
	if drifted > 0 {
		return fmt.Errorf("%d of %d accounts do not reconcile", drifted, len(ids))
	}
	pterm.Success.Printf("%d accounts reconcile\n", len(ids))
	return nil
}

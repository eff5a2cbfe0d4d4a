package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rainforce/smbclient/internal/constants"
)

var errHistoryDisabled = errors.New("transfer history is disabled (history_db is empty)")

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers",
		Long: `Show finished uploads and downloads, newest first, including failures and
rejected requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.runHistory(ctx, limit)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", constants.HistoryDefaultLimit, "Maximum number of transfers to show")

	return cmd
}

func (a *app) runHistory(ctx context.Context, limit int) error {
	if a.journal == nil {
		return errHistoryDisabled
	}
	if limit <= 0 {
		limit = constants.HistoryDefaultLimit
	}
	records, err := a.journal.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read transfer history: %w", err)
	}
	printHistory(a.out, records)
	return nil
}

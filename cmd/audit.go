package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/matrixise/walletd/internal/config"
	"github.com/matrixise/walletd/internal/logger"
	"github.com/matrixise/walletd/internal/storage"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit <address>",
	Short: "Show recent audit events for a wallet address",
	Long:  `List the newest connection and approval events recorded for an address. Requires DATABASE_URL.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum number of events (1-1000)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid address %q", args[0])
	}

	dsn, err := config.RequireDatabaseURL()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := storage.NewStore(ctx, dsn)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		return err
	}
	defer store.Close()

	events, err := store.RecentEvents(ctx, args[0], auditLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tCHAIN\tSYMBOL\tAMOUNT\tSPENDER\tTX")
	for _, ev := range events {
		amount := "-"
		if ev.Amount.Valid {
			amount = ev.Amount.Decimal.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			ev.OccurredAt.Format(time.RFC3339), ev.Kind, ev.ChainID,
			dash(ev.Symbol), amount, dash(ev.Spender), dash(ev.TxHash))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

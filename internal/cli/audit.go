package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

// AuditFlags holds the CLI flags for the audit command.
type AuditFlags struct {
	Partner   string
	SessionID string
	Limit     int
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	flags := &AuditFlags{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report approved orders and the remote calls behind them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := storage.NewStorage(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", cfg.Storage.DatabasePath)
			return RunAudit(cmd.Context(), cmd.OutOrStdout(), store, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Partner, "partner", "p", "", "Only approvals for this partner slug")
	cmd.Flags().StringVar(&flags.SessionID, "session", "", "Also list the remote calls of this session")
	cmd.Flags().IntVar(&flags.Limit, "limit", 10, "Rows per section")
	return cmd
}

// RunAudit prints approval statistics, the latest approvals and, when a
// session is given, its latest remote calls.
func RunAudit(ctx context.Context, w io.Writer, repo storage.Repository, flags *AuditFlags) error {
	if flags.Partner != "" {
		p, err := partners.Lookup(flags.Partner)
		if err != nil {
			return fmt.Errorf("%w: %q", err, flags.Partner)
		}
		flags.Partner = p.Slug
	}

	result, err := repo.ListApprovals(ctx, storage.ApprovalFilters{
		Partner:   flags.Partner,
		SessionID: flags.SessionID,
		Limit:     flags.Limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	fmt.Fprintln(w, "RECEIPT DESK AUDIT REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Approved orders: %d\n\n", result.TotalCount)

	fmt.Fprintln(w, "RECENT APPROVALS")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	if len(result.Approvals) == 0 {
		fmt.Fprintln(w, "No approvals recorded.")
	}
	for _, a := range result.Approvals {
		total := "N/A"
		if a.Total != nil {
			total = receipt.FormatAmount(*a.Total)
		}
		fmt.Fprintf(w, "%-20s %-9s %-12s %-12s %s\n",
			a.ApprovedAt.Local().Format(time.DateTime),
			a.Partner,
			orNA(a.OrderID),
			orNA(a.Username),
			total)
	}

	if flags.SessionID == "" {
		return nil
	}

	calls, err := repo.ListAPICalls(ctx, flags.SessionID, flags.Limit)
	if err != nil {
		return fmt.Errorf("failed to list remote calls: %w", err)
	}

	fmt.Fprintf(w, "\nREMOTE CALLS (%s)\n", flags.SessionID)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	if len(calls) == 0 {
		fmt.Fprintln(w, "No remote calls recorded.")
	}
	for _, c := range calls {
		status := fmt.Sprintf("%d", c.StatusCode)
		if c.Error != "" {
			status = "ERR " + c.Error
		}
		fmt.Fprintf(w, "%-20s %-7s %-28s %6dms %s\n",
			c.Timestamp.Local().Format(time.DateTime),
			c.Method,
			c.Path,
			c.DurationMs,
			status)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"cardvault-backend/bootstrap"
	"cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/application/integrity"
	"cardvault-backend/internal/config"
	"cardvault-backend/internal/pkg/validation"

	"github.com/spf13/cobra"
)

// errIssuesFound makes `audit` exit non-zero so cron can alert on drift.
var errIssuesFound = errors.New("integrity issues found")

type opener func(ctx context.Context) (*bootstrap.Container, error)

func main() {
	root := newRootCmd(openContainer)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errIssuesFound) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func openContainer(ctx context.Context) (*bootstrap.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c.DB == nil {
		c.Close()
		return nil, errors.New("DATABASE_URL is required")
	}
	return c, nil
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Operator tooling for card escrow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAuditCmd(open),
		newReleaseCmd(open),
		newHistoryCmd(open),
	)
	return root
}

func newAuditCmd(open opener) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run the escrow integrity check and report drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return runAudit(cmd.Context(), c.Integrity, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runAudit(ctx context.Context, svc *integrity.Service, out io.Writer, asJSON bool) error {
	report, err := svc.RunIntegrityCheck(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if report.TotalIssues > 0 {
		return errIssuesFound
	}
	return nil
}

func newReleaseCmd(open opener) *cobra.Command {
	var escrowID, operator, reason string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release a locked escrow after manual review",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return runRelease(cmd.Context(), c.Escrow, cmd.OutOrStdout(), escrowID, operator, reason)
		},
	}
	cmd.Flags().StringVar(&escrowID, "escrow-id", "", "escrow to release")
	cmd.Flags().StringVar(&operator, "operator", "", "operator performing the release")
	cmd.Flags().StringVar(&reason, "reason", "", "why the escrow is released")
	_ = cmd.MarkFlagRequired("escrow-id")
	_ = cmd.MarkFlagRequired("operator")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func runRelease(ctx context.Context, svc *escrow.Service, out io.Writer, rawID, operator, rawReason string) error {
	id, err := validation.ParseID("escrow-id", rawID)
	if err != nil {
		return err
	}
	reason, err := validation.Reason(rawReason)
	if err != nil {
		return err
	}
	lock, err := svc.Release(ctx, id, operator, reason)
	if err != nil {
		return err
	}
	success.Fprintf(out, "released %s", lock.ID)
	neutral.Fprintf(out, " (card %s, order %s)\n", lock.CardInstanceID, lock.OrderID)
	return nil
}

func newHistoryCmd(open opener) *cobra.Command {
	var escrowID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the audit trail of one escrow",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			id, err := validation.ParseID("escrow-id", escrowID)
			if err != nil {
				return err
			}
			events, err := c.Escrow.History(cmd.Context(), id)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().StringVar(&escrowID, "escrow-id", "", "escrow to inspect")
	_ = cmd.MarkFlagRequired("escrow-id")
	return cmd
}

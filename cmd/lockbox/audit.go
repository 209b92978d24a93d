package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/lockbox/internal/models"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the access audit log",
	Long: `Audit lists access log entries, newest first. Admins see every entry;
auditors see entries for files they own.`,
	Example: `  lockbox audit --user root --action DOWNLOAD --since 24h
  lockbox audit --user root --owner alice --limit 50`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

var (
	auditAction string
	auditSince  time.Duration
	auditLimit  int
	auditOwner  string
)

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditAction, "action", "",
		"Only show UPLOAD, DOWNLOAD, DELETE or VIEW entries")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0,
		"Only show entries newer than this (e.g. 24h)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100,
		"Maximum number of entries (0 for all)")
	auditCmd.Flags().StringVar(&auditOwner, "owner", "",
		"Only show entries on files owned by this user (admins)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	query := models.AuditQuery{
		FileOwnerID: auditOwner,
		Limit:       auditLimit,
	}

	if auditAction != "" {
		query.Action = models.Action(strings.ToUpper(auditAction))
		if !query.Action.Valid() {
			return fail(&models.ValidationError{
				Field:  "action",
				Reason: fmt.Sprintf("unknown action %q", auditAction),
			})
		}
	}

	if auditSince > 0 {
		query.Since = time.Now().Add(-auditSince)
	}

	return withUser(ctx, func(a *app, user string) error {
		entries, err := a.vault.ListAuditLogs(ctx, user, query)
		if err != nil {
			return fail(err)
		}

		if jsonOutput {
			if entries == nil {
				entries = []*models.AuditEntry{}
			}
			printJSON(entries)
			return nil
		}

		printAuditEntries(entries)
		return nil
	})
}

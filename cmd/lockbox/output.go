package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/TheMichaelB/lockbox/internal/models"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// reportedError marks an error already shown to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// fail prints err in the selected output format and marks it reported.
func fail(err error) error {
	var reported *reportedError
	if errors.As(err, &reported) {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": false,
			"code":    models.Code(err),
			"error":   err.Error(),
		})
	} else {
		printError("Error: %v", err)
	}
	return &reportedError{err: err}
}

func printRecord(r *models.VaultRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", r.ID)
	fmt.Fprintf(w, "Filename:\t%s\n", r.OriginalFilename)
	fmt.Fprintf(w, "Size:\t%s\n", formatBytes(r.PlaintextSize))
	fmt.Fprintf(w, "Created:\t%s\n", r.CreatedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "Modified:\t%s\n", r.ModifiedAt.Local().Format(time.RFC1123))
	_ = w.Flush()
}

func printRecords(records []*models.VaultRecord) {
	if len(records) == 0 {
		printInfo("No files")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tSIZE\tUPLOADED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.ID, r.OriginalFilename, formatBytes(r.PlaintextSize),
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func printAuditEntries(entries []*models.AuditEntry) {
	if len(entries) == 0 {
		printInfo("No audit entries")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tUSER\tFILE\tSOURCE\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Action.Display(),
			deref(e.UserID, "system"),
			deref(e.FileID, "-"),
			e.SourceIP,
			statusLabel(e),
		)
	}
	_ = w.Flush()
}

func statusLabel(e *models.AuditEntry) string {
	status := e.Status()
	if reason, ok := e.Details[models.DetailReason].(string); ok {
		return status + " (" + reason + ")"
	}
	if status == "" {
		return "-"
	}
	return status
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

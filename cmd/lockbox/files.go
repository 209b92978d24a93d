package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/lockbox/internal/models"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Encrypt and store a file",
	Long: `Upload encrypts a file with a key derived from the given password and
stores it. The password is never stored; it is needed again to download.`,
	Example: `  lockbox upload report.pdf --user alice
  lockbox upload notes.txt --name "meeting notes.txt"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Decrypt and retrieve a file",
	Example: `  lockbox download 6f1c... --output ./report.pdf
  lockbox download 6f1c... --output - > report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Delete a stored file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var showCmd = &cobra.Command{
	Use:   "show <file-id>",
	Short: "Show file metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your files",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var (
	uploadName     string
	filePassword   string
	downloadOutput string
	downloadForce  bool
)

func init() {
	rootCmd.AddCommand(uploadCmd, downloadCmd, deleteCmd, showCmd, listCmd)

	for _, cmd := range []*cobra.Command{uploadCmd, downloadCmd} {
		cmd.Flags().StringVarP(&filePassword, "password", "p", "",
			"File password (will prompt if not provided)")
	}

	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "",
		"Stored filename (default: base name of the file)")

	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "",
		"Output path, - for stdout (default: original filename)")
	downloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false,
		"Overwrite an existing output file")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	data, err := readLimited(path, cfg.Storage.MaxFileSize)
	if err != nil {
		return fail(err)
	}

	name := uploadName
	if name == "" {
		name = filepath.Base(path)
	}

	password, confirm := filePassword, filePassword
	if password == "" {
		if password, err = promptPassword("File password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if confirm, err = promptPassword("Confirm password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	return withUser(ctx, func(a *app, user string) error {
		record, err := a.vault.Upload(ctx, models.UploadRequest{
			OwnerID:  user,
			Filename: name,
			Data:     data,
			Password: password,
			Confirm:  confirm,
		}, requestInfo())
		if err != nil {
			return fail(err)
		}

		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": true,
				"file":    record,
			})
			return nil
		}

		printSuccess("Uploaded %s (%s)", record.OriginalFilename, formatBytes(record.PlaintextSize))
		printInfo("File ID: %s", record.ID)
		return nil
	})
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	recordID := args[0]

	password := filePassword
	if password == "" {
		var err error
		if password, err = promptPassword("File password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	return withUser(ctx, func(a *app, user string) error {
		plaintext, record, err := a.vault.Download(ctx, recordID, user, password, requestInfo())
		if err != nil {
			return fail(err)
		}

		if downloadOutput == "-" {
			_, err := os.Stdout.Write(plaintext)
			return err
		}

		out := downloadOutput
		if out == "" {
			out = filepath.Base(record.OriginalFilename)
		}

		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if !downloadForce {
			flags |= os.O_EXCL
		}

		f, err := os.OpenFile(out, flags, 0600)
		if err != nil {
			return fail(fmt.Errorf("create output: %w", err))
		}
		if _, err := f.Write(plaintext); err != nil {
			f.Close()
			return fail(fmt.Errorf("write output: %w", err))
		}
		if err := f.Close(); err != nil {
			return fail(fmt.Errorf("write output: %w", err))
		}

		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": true,
				"file":    record,
				"output":  out,
			})
			return nil
		}

		printSuccess("Saved %s (%s)", out, formatBytes(int64(len(plaintext))))
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	return withUser(ctx, func(a *app, user string) error {
		if err := a.vault.Delete(ctx, args[0], user, requestInfo()); err != nil {
			return fail(err)
		}

		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "id": args[0]})
			return nil
		}

		printSuccess("Deleted %s", args[0])
		return nil
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	return withUser(ctx, func(a *app, user string) error {
		record, err := a.vault.Describe(ctx, args[0], user, requestInfo())
		if err != nil {
			return fail(err)
		}

		if jsonOutput {
			printJSON(record)
			return nil
		}

		printRecord(record)
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	return withUser(ctx, func(a *app, user string) error {
		records, err := a.vault.ListFiles(ctx, user)
		if err != nil {
			return fail(err)
		}

		if jsonOutput {
			if records == nil {
				records = []*models.VaultRecord{}
			}
			printJSON(records)
			return nil
		}

		printRecords(records)
		return nil
	})
}

// readLimited reads at most limit+1 bytes so oversized files are rejected
// by upload validation without buffering them whole.
func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/receipt-desk/internal/adapters/receiptapi"
	"github.com/eshaffer321/receipt-desk/internal/application/receipts"
	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
	"github.com/eshaffer321/receipt-desk/internal/domain/reconciler"
)

// ProcessFlags holds the CLI flags for the process command.
type ProcessFlags struct {
	Partner string
	File    string
	JSON    bool
}

func newProcessCommand(opts *rootOptions) *cobra.Command {
	flags := &ProcessFlags{}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract a draft order from a receipt image without saving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			partner, err := partners.Lookup(flags.Partner)
			if err != nil {
				return fmt.Errorf("%w: %q", err, flags.Partner)
			}

			app, err := opts.app()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			draft, err := RunProcess(cmd.Context(), app.Clients.Receipts, flags.File)
			if err != nil {
				return err
			}
			return WriteDraft(cmd.OutOrStdout(), partner, draft, flags.JSON)
		},
	}

	cmd.Flags().StringVarP(&flags.Partner, "partner", "p", "talabat", "Delivery partner slug")
	cmd.Flags().StringVarP(&flags.File, "file", "f", "", "Receipt image to process")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Print the draft as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// RunProcess uploads path, runs extraction and reconciles the result.
func RunProcess(ctx context.Context, client *receiptapi.Client, path string) (receipt.OrderRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return receipt.OrderRecord{}, err
	}
	defer f.Close()

	contentType, err := detectContentType(f, path)
	if err != nil {
		return receipt.OrderRecord{}, err
	}
	if !receipts.IsImage(contentType) {
		return receipt.OrderRecord{}, fmt.Errorf("%s: %w", path, receipts.ErrNotImage)
	}

	filePath, err := client.Upload(ctx, receiptapi.Image{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        f,
	})
	if err != nil {
		return receipt.OrderRecord{}, err
	}

	payload, err := client.Process(ctx, filePath)
	if err != nil {
		return receipt.OrderRecord{}, err
	}
	return reconciler.Reconcile(payload), nil
}

// WriteDraft prints draft as a table or as indented JSON.
func WriteDraft(w io.Writer, partner partners.Partner, draft receipt.OrderRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(draft)
	}
	PrintHeader(w, "process", partner.Name)
	PrintDraft(w, draft)
	return nil
}

// detectContentType trusts the extension first, then sniffs the file.
func detectContentType(f *os.File, path string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct, nil
	}

	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

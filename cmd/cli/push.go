package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"openenterprise/webota/update"
)

var errUploadFailed = errors.New("device reported FAIL")

var (
	pushCmd = &cobra.Command{
		Use:   "push <host> <firmware.bin|firmware.uf2>",
		Short: "Upload a firmware image; UF2 files are converted to a raw image first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := !noProgress && term.IsTerminal(int(os.Stderr.Fd()))
			return push(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], progress)
		},
	}

	noProgress bool
)

func init() {
	pushCmd.Flags().BoolVar(&noProgress, "no-progress", false, "don't draw a progress bar")
	rootCmd.AddCommand(pushCmd)
}

// loadFirmware reads path and returns the raw image and the file name to
// upload it as.
func loadFirmware(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read firmware: %w", err)
	}
	name := filepath.Base(path)
	if !isUF2(data) {
		return data, name, nil
	}
	fw, err := extractUF2Binary(data)
	if err != nil {
		return nil, "", fmt.Errorf("extract UF2: %w", err)
	}
	return fw, strings.TrimSuffix(name, filepath.Ext(name)) + ".bin", nil
}

func push(ctx context.Context, w io.Writer, host, path string, progress bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fw, name, err := loadFirmware(path)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(fw)
	fmt.Fprintf(w, "Firmware: %s\n", path)
	fmt.Fprintf(w, "Binary size: %d bytes (%d KB)\n", len(fw), len(fw)/1024)
	fmt.Fprintf(w, "SHA256: %x\n", hash[:8])

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.DefaultBytes(int64(len(fw)), "Uploading")
	} else {
		bar = progressbar.DefaultBytesSilent(int64(len(fw)), "Uploading")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(update.FormField, name)
		if err == nil {
			_, err = io.Copy(io.MultiWriter(part, bar), bytes.NewReader(fw))
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(host)+"/update", pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	// No client timeout: flash erase makes large uploads slow.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	bar.Finish()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	switch result := strings.TrimSpace(string(body)); result {
	case "OK":
		fmt.Fprintln(w, "Firmware accepted, device will restart")
		return nil
	case "FAIL":
		return errUploadFailed
	default:
		return fmt.Errorf("unexpected response: %q", result)
	}
}

package update

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	appErrors "cabplanner/internal/errors"
)

// downloadBlockSize is the streaming block size. Cancellation is polled
// between blocks, so it also bounds cancellation latency.
const downloadBlockSize = 32 * 1024

// DownloadOptions configures a single download.
type DownloadOptions struct {
	// OnProgress receives percentages in [0,100]. Only invoked when the
	// server advertised a Content-Length.
	OnProgress func(percent int)
	// IsCancelled is polled between blocks; returning true aborts the
	// download with a cancelled error.
	IsCancelled func() bool
	// Timeout bounds the whole request including the body read. Zero
	// means no timeout.
	Timeout time.Duration
	// Client overrides the HTTP client, for tests.
	Client *http.Client
}

// Download streams url to dest in fixed-size blocks. On every failure path,
// including cancellation, the partial destination file is removed so the
// caller never mistakes it for a complete download.
func Download(url, dest string, opts DownloadOptions) error {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	resp, err := client.Get(url)
	if err != nil {
		return appErrors.New(appErrors.CodeNetworkFailure, "download request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return appErrors.New(appErrors.CodeNetworkFailure,
			fmt.Sprintf("download returned status %d", resp.StatusCode), nil)
	}

	total := resp.ContentLength // -1 when the server sent no Content-Length

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}

	discard := func() {
		_ = out.Close()
		_ = os.Remove(dest)
	}

	buf := make([]byte, downloadBlockSize)
	var downloaded int64
	for {
		if opts.IsCancelled != nil && opts.IsCancelled() {
			discard()
			return appErrors.New(appErrors.CodeCancelled, "download cancelled", nil)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				discard()
				return fmt.Errorf("write destination file: %w", writeErr)
			}
			downloaded += int64(n)
			if opts.OnProgress != nil && total > 0 {
				percent := int(downloaded * 100 / total)
				if percent > 100 {
					percent = 100
				}
				opts.OnProgress(percent)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			discard()
			return appErrors.New(appErrors.CodeNetworkFailure, "download interrupted", readErr)
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("close destination file: %w", err)
	}

	// Reached only when the body ended in a clean EOF; a truncated
	// connection usually surfaces as a read error above.
	if total > 0 && downloaded != total {
		_ = os.Remove(dest)
		return appErrors.New(appErrors.CodeVerificationFailed,
			fmt.Sprintf("download incomplete: expected %d bytes, got %d", total, downloaded), nil)
	}

	return nil
}

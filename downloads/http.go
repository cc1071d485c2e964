package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetryAttempts bounds DownloadWithRetry.
	DefaultRetryAttempts = 3
	// DefaultRetryDelay separates retry attempts.
	DefaultRetryDelay = 5 * time.Second

	copyBufferSize   = 32 * 1024
	progressInterval = 100 * time.Millisecond
)

// DownloadFile fetches url into destPath, resuming a partial file via an
// HTTP Range request when one is already on disk. progressCb, if non-nil,
// receives (downloaded, total) at most every progressInterval; total is -1
// when the server does not report a length.
func DownloadFile(ctx context.Context, destPath string, url string, progressCb ByteProgressCallback) error {
	var offset int64
	if stat, err := os.Stat(destPath); err == nil {
		offset = stat.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("downloads: build request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		log.Debug().Str("url", url).Str("offset", FormatBytes(offset)).Msg("downloads: resuming")
	}

	// Large artifacts; the caller's context is the only deadline.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("downloads: request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the Range header; start over.
		offset = 0
	case http.StatusPartialContent:
	default:
		return fmt.Errorf("downloads: bad status: %s", resp.Status)
	}

	total := resp.ContentLength
	if total > 0 {
		total += offset
	}

	var out *os.File
	if offset > 0 {
		out, err = os.OpenFile(destPath, os.O_APPEND|os.O_WRONLY, 0644)
	} else {
		out, err = os.Create(destPath)
	}
	if err != nil {
		return fmt.Errorf("downloads: open %s: %w", destPath, err)
	}
	defer out.Close()

	downloaded, err := copyWithProgress(ctx, out, resp.Body, offset, total, progressCb)
	if err != nil {
		return err
	}
	log.Debug().Str("url", url).Str("size", FormatBytes(downloaded)).Msg("downloads: complete")
	return nil
}

func copyWithProgress(ctx context.Context, out *os.File, body io.Reader, offset, total int64, progressCb ByteProgressCallback) (int64, error) {
	downloaded := offset
	buffer := make([]byte, copyBufferSize)
	lastReport := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}
		n, err := body.Read(buffer)
		if n > 0 {
			if _, werr := out.Write(buffer[:n]); werr != nil {
				return downloaded, fmt.Errorf("downloads: write: %w", werr)
			}
			downloaded += int64(n)
			if progressCb != nil && time.Since(lastReport) >= progressInterval {
				progressCb(downloaded, total)
				lastReport = time.Now()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return downloaded, fmt.Errorf("downloads: read body: %w", err)
		}
	}
	if progressCb != nil {
		progressCb(downloaded, total)
	}
	return downloaded, nil
}

// DownloadWithRetry wraps DownloadFile with a bounded retry loop. A resumable
// partial file survives between attempts, so retries continue where the
// failed attempt stopped. Context cancellation is never retried.
func DownloadWithRetry(ctx context.Context, destPath string, url string, progressCb ByteProgressCallback) error {
	var lastErr error
	for attempt := 1; attempt <= DefaultRetryAttempts; attempt++ {
		lastErr = DownloadFile(ctx, destPath, url, progressCb)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt < DefaultRetryAttempts {
			log.Debug().Err(lastErr).Int("attempt", attempt).Str("url", url).Msg("downloads: retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(DefaultRetryDelay):
			}
		}
	}
	return fmt.Errorf("downloads: failed after %d attempts: %w", DefaultRetryAttempts, lastErr)
}

// FormatBytes renders a byte count as a human-readable size.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Package download fetches package archives over HTTP with fractional
// progress reporting.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Downloader streams the resource at url into destPath. onProgress receives a
// monotonically increasing fraction in [0,1]; when the server does not
// announce a content length only the final 1 is reported. Cancellation goes
// through ctx and aborts the transfer at the transport level.
type Downloader interface {
	Download(ctx context.Context, url string, destPath string, onProgress func(float64)) error
}

type DownloaderOption func(d *_Downloader)

func WithTimeout(timeout time.Duration) DownloaderOption {
	return func(d *_Downloader) {
		d.timeout = timeout
	}
}

type _Downloader struct {
	timeout time.Duration
}

func NewDownloader(opts ...DownloaderOption) *_Downloader {
	d := &_Downloader{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *_Downloader) Download(ctx context.Context, url string, destPath string, onProgress func(float64)) error {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	transport.MaxIdleConnsPerHost = -1
	client := http.Client{Timeout: d.timeout, Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned unexpected status code %d", url, resp.StatusCode)
	}

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer destFile.Close()

	totalBytes := resp.ContentLength
	var doneBytes int64
	buf := make([]byte, 128*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := destFile.Write(buf[:n]); err != nil {
				return fmt.Errorf("write %s: %w", destPath, err)
			}
			doneBytes += int64(n)
			if onProgress != nil && totalBytes > 0 {
				onProgress(float64(doneBytes) / float64(totalBytes))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", url, readErr)
		}
	}

	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

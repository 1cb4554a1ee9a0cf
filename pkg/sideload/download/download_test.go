package download_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prostore-ios/sideloader/pkg/sideload/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	payload := make([]byte, 512*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "package.ipa")
	progress := make([]float64, 0, 16)
	err := download.NewDownloader().Download(context.Background(), server.URL, destPath, func(f float64) {
		progress = append(progress, f)
	})
	require.NoError(t, err)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestDownloadUnknownLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response: no content length announced.
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("archive bytes"))
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "package.ipa")
	progress := make([]float64, 0, 4)
	err := download.NewDownloader().Download(context.Background(), server.URL, destPath, func(f float64) {
		progress = append(progress, f)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, progress)
}

func TestDownloadUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "package.ipa")
	err := download.NewDownloader().Download(context.Background(), server.URL, destPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, statErr := os.Stat(destPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		_, _ = w.Write(make([]byte, 1024))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	destPath := filepath.Join(t.TempDir(), "package.ipa")
	err := download.NewDownloader().Download(ctx, server.URL, destPath, func(f float64) {
		cancel()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadInvalidURL(t *testing.T) {
	destPath := filepath.Join(t.TempDir(), "package.ipa")
	err := download.NewDownloader().Download(context.Background(), "http://127.0.0.1:1/unreachable", destPath, nil)
	require.Error(t, err)
}

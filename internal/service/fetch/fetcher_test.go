package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

const testImageName = "shani-os-2026.08.img.zst"

// newImageServer serves a digest file for testImageName plus the image body,
// counting how often the image itself is requested.
func newImageServer(t *testing.T, content []byte, imageHits *atomic.Int64) *httptest.Server {
	t.Helper()

	digest := sha256.Sum256(content)
	checksumBody := fmt.Sprintf("%s  %s\n", hex.EncodeToString(digest[:]), testImageName)

	mux := http.NewServeMux()
	mux.HandleFunc("/images/"+testImageName+checksumSuffix, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(checksumBody))
	})
	mux.HandleFunc("/images/"+testImageName, func(w http.ResponseWriter, _ *http.Request) {
		if imageHits != nil {
			imageHits.Add(1)
		}

		_, _ = w.Write(content)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// TestFetchFullDownload downloads the complete image when the cache holds no seed.
func TestFetchFullDownload(t *testing.T) {
	t.Parallel()

	content := []byte("btrfs send stream v2")
	server := newImageServer(t, content, nil)
	cacheDir := t.TempDir()

	fetcher := NewFetcher(runner.NewFake(), server.URL+"/images", cacheDir, time.Minute)

	path, err := fetcher.Fetch(context.Background(), testImageName)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cacheDir, testImageName), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// No partial remains after a successful fetch.
	_, err = os.Stat(path + partialSuffix)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFetchCacheHitSkipsTransfer never touches the image endpoint when the
// cached copy already matches the published checksum.
func TestFetchCacheHitSkipsTransfer(t *testing.T) {
	t.Parallel()

	var imageHits atomic.Int64

	content := []byte("cached image payload")
	server := newImageServer(t, content, &imageHits)
	cacheDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, testImageName), content, 0o644))

	fetcher := NewFetcher(runner.NewFake(), server.URL+"/images", cacheDir, time.Minute)

	path, err := fetcher.Fetch(context.Background(), testImageName)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cacheDir, testImageName), path)
	require.Zero(t, imageHits.Load())
}

// TestFetchDeltaTransfer drives zsync against the newest cached seed.
func TestFetchDeltaTransfer(t *testing.T) {
	t.Parallel()

	content := []byte("new image produced by delta transfer")
	server := newImageServer(t, content, nil)
	cacheDir := t.TempDir()

	seed := filepath.Join(cacheDir, "shani-os-2026.07.img.zst")
	require.NoError(t, os.WriteFile(seed, []byte("previous image"), 0o644))

	// The scripted zsync does not write files, so stage its output up front.
	partial := filepath.Join(cacheDir, testImageName+partialSuffix)
	require.NoError(t, os.WriteFile(partial, content, 0o644))

	fake := runner.NewFake()
	fetcher := NewFetcher(fake, server.URL+"/images", cacheDir, time.Minute)

	path, err := fetcher.Fetch(context.Background(), testImageName)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, got)

	require.True(t, fake.Called("zsync -i "+seed))
}

// TestFetchChecksumMismatch refuses to publish a corrupt download.
func TestFetchChecksumMismatch(t *testing.T) {
	t.Parallel()

	server := newImageServer(t, []byte("expected payload"), nil)
	cacheDir := t.TempDir()

	// The delta path hands back a corrupt partial.
	partial := filepath.Join(cacheDir, testImageName+partialSuffix)
	require.NoError(t, os.WriteFile(partial, []byte("corrupt payload"), 0o644))

	seed := filepath.Join(cacheDir, "seed.img.zst")
	require.NoError(t, os.WriteFile(seed, []byte("seed"), 0o644))

	fetcher := NewFetcher(runner.NewFake(), server.URL+"/images", cacheDir, time.Minute)

	_, err := fetcher.Fetch(context.Background(), testImageName)
	require.Error(t, err)
	require.Equal(t, boot.CategoryValidation, boot.CategoryOf(err))

	// The corrupt file was neither published nor left behind.
	_, err = os.Stat(filepath.Join(cacheDir, testImageName))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(partial)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFetchServerUnreachable reports a retryable network failure.
func TestFetchServerUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	fetcher := NewFetcher(runner.NewFake(), server.URL+"/images", t.TempDir(), time.Second)

	_, err := fetcher.Fetch(context.Background(), testImageName)
	require.Error(t, err)
	require.Equal(t, boot.CategoryNetwork, boot.CategoryOf(err))
}

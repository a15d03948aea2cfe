package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

const (
	// checksumSuffix is appended to the image name to locate its digest file.
	checksumSuffix = ".sha256"
	// deltaIndexSuffix is appended to the image name to locate its delta index.
	deltaIndexSuffix = ".zsync"
	// partialSuffix marks in-flight downloads; they are never used as images.
	partialSuffix = ".partial"

	// maxChecksumBody bounds the digest file size read from the server.
	maxChecksumBody = 4096

	// cacheDirPermissions is the permission for the delta cache directory.
	cacheDirPermissions = 0o755
)

var (
	errNoBaseURL       = errors.New("no image base URL configured")
	errNoImageName     = errors.New("no image name configured")
	errBadHTTPStatus   = errors.New("unexpected http status")
	errEmptyChecksum   = errors.New("empty checksum file")
	errNoUsableSeed    = errors.New("no usable delta seed in cache")
	errChecksumDiffers = errors.New("checksum mismatch")
)

// Fetcher downloads images into the cache directory.
type Fetcher struct {
	run      runner.Runner
	client   *http.Client
	baseURL  string
	cacheDir string
}

// NewFetcher returns a Fetcher downloading from baseURL into cacheDir.
func NewFetcher(run runner.Runner, baseURL, cacheDir string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		run:      run,
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		cacheDir: cacheDir,
	}
}

// Fetch retrieves the named image and returns its cached path.
//
// A cache hit matching the published checksum skips the network entirely.
// Otherwise the image is delta-transferred against the best local seed, or
// downloaded in full when no seed exists, verified, and renamed into place.
func (f *Fetcher) Fetch(ctx context.Context, imageName string) (string, error) {
	if f.baseURL == "" {
		return "", boot.E("fetch", boot.CategoryValidation, errNoBaseURL)
	}

	if imageName == "" {
		return "", boot.E("fetch", boot.CategoryValidation, errNoImageName)
	}

	if err := os.MkdirAll(f.cacheDir, cacheDirPermissions); err != nil {
		return "", boot.E("fetch", boot.CategoryValidation, fmt.Errorf("create cache dir: %w", err))
	}

	want, err := f.remoteChecksum(ctx, imageName)
	if err != nil {
		return "", boot.E("fetch", boot.CategoryNetwork, err)
	}

	dest := filepath.Join(f.cacheDir, imageName)

	if f.cacheValid(ctx, dest, want) {
		logger.InfoKV(ctx, "Image already cached, skipping transfer", "path", dest)
		return dest, nil
	}

	partial := dest + partialSuffix

	defer func() {
		// A leftover partial is harmless but never mistaken for an image.
		_ = os.Remove(partial)
	}()

	if err := f.deltaTransfer(ctx, imageName, partial); err != nil {
		logger.WarnKV(ctx, "Delta transfer unavailable, downloading full image",
			"image", imageName, "reason", err)

		if err := f.fullDownload(ctx, imageName, partial); err != nil {
			return "", boot.E("fetch", boot.CategoryNetwork, err)
		}
	}

	got, err := fileChecksum(partial)
	if err != nil {
		return "", boot.E("fetch", boot.CategoryValidation, err)
	}

	if got != want {
		return "", boot.E("fetch", boot.CategoryValidation,
			fmt.Errorf("%w: got %s, want %s", errChecksumDiffers, got, want))
	}

	// The rename is what publishes the image to the cache; everything before
	// it is invisible to other runs.
	if err := os.Rename(partial, dest); err != nil {
		return "", boot.E("fetch", boot.CategoryValidation, fmt.Errorf("finalize image: %w", err))
	}

	logger.InfoKV(ctx, "Image fetched", "path", dest)

	return dest, nil
}

// cacheValid reports whether dest exists and matches the published checksum.
func (f *Fetcher) cacheValid(ctx context.Context, dest, want string) bool {
	if _, err := os.Stat(dest); err != nil {
		return false
	}

	got, err := fileChecksum(dest)
	if err != nil {
		logger.WarnKV(ctx, "Unable to hash cached image", "path", dest, "error", err)
		return false
	}

	return got == want
}

// deltaTransfer runs a zsync block-level transfer against the best seed.
func (f *Fetcher) deltaTransfer(ctx context.Context, imageName, partial string) error {
	seed, err := f.latestSeed(imageName)
	if err != nil {
		return err
	}

	indexURL, err := f.remoteURL(imageName + deltaIndexSuffix)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Starting delta transfer", "image", imageName, "seed", seed)

	if err := f.run.Run(ctx, "zsync", "-i", seed, "-o", partial, indexURL); err != nil {
		return fmt.Errorf("zsync: %w", err)
	}

	return nil
}

// latestSeed picks the most recently modified cached image as the delta
// seed. Partials and digest files never qualify.
func (f *Fetcher) latestSeed(imageName string) (string, error) {
	entries, err := os.ReadDir(f.cacheDir)
	if err != nil {
		return "", err
	}

	var (
		seed    string
		newest  time.Time
		skipped = map[string]struct{}{imageName: {}}
	)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}

		if _, ok := skipped[name]; ok {
			continue
		}

		if strings.HasSuffix(name, partialSuffix) || strings.HasSuffix(name, checksumSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(newest) {
			newest = info.ModTime()
			seed = filepath.Join(f.cacheDir, name)
		}
	}

	if seed == "" {
		return "", errNoUsableSeed
	}

	return seed, nil
}

// fullDownload streams the complete image into the partial file.
func (f *Fetcher) fullDownload(ctx context.Context, imageName, partial string) error {
	imageURL, err := f.remoteURL(imageName)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Downloading full image", "url", imageURL)

	response, err := f.get(ctx, imageURL)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create partial: %w", err)
	}

	if _, err := io.Copy(out, response.Body); err != nil {
		_ = out.Close()

		return fmt.Errorf("download image: %w", err)
	}

	return out.Close()
}

// remoteChecksum fetches and parses the published image digest.
func (f *Fetcher) remoteChecksum(ctx context.Context, imageName string) (string, error) {
	checksumURL, err := f.remoteURL(imageName + checksumSuffix)
	if err != nil {
		return "", err
	}

	response, err := f.get(ctx, checksumURL)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxChecksumBody))
	if err != nil {
		return "", err
	}

	// Digest files follow the sha256sum layout: "<hex>  <filename>".
	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return "", errEmptyChecksum
	}

	return strings.ToLower(fields[0]), nil
}

// get issues a context-aware GET and rejects non-200 responses.
func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// remoteURL joins the base URL with a file name, normalizing duplicate slashes.
func (f *Fetcher) remoteURL(fileName string) (string, error) {
	base, err := url.Parse(f.baseURL)
	if err != nil {
		return "", err
	}

	base.Path = path.Join(base.Path, fileName)

	return base.String(), nil
}

// fileChecksum streams the file through SHA-256 and returns the hex digest.
func fileChecksum(filePath string) (string, error) {
	file, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", filePath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

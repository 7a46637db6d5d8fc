// Package updater checks GitHub releases for a newer chattree and can
// replace the binary in place.
//
// The new binary is written next to the old one and renamed over it, so
// an interrupted update leaves the old binary intact.
package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	DefaultRepo   = "HendryAvila/chattree"
	DefaultBinary = "chattree"

	checkTimeout = 10 * time.Second
	// release archives are a few MB; anything far larger is not ours
	maxArchiveSize = 200 << 20
)

var ErrUpToDate = errors.New("updater: already at the latest version")

// ReleaseInfo holds the relevant fields from a GitHub release.
type ReleaseInfo struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a downloadable file in a GitHub release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Result describes how the running version compares to the latest release.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string

	release ReleaseInfo
}

// Client talks to the GitHub releases API.
type Client struct {
	// Endpoint is the latest-release URL.
	Endpoint string
	Binary   string
	HTTP     *http.Client
	GOOS     string
	GOARCH   string
}

// New returns a client for the chattree repository.
func New() *Client {
	return &Client{
		Endpoint: "https://api.github.com/repos/" + DefaultRepo + "/releases/latest",
		Binary:   DefaultBinary,
		HTTP:     &http.Client{Timeout: checkTimeout},
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
	}
}

// Check fetches the latest release and compares it with current. A "dev"
// build never reports an update.
func (c *Client) Check(ctx context.Context, current string) (*Result, error) {
	res := &Result{CurrentVersion: normalizeVersion(current)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return res, fmt.Errorf("updater: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.Binary+"/"+current)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return res, fmt.Errorf("updater: check latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("updater: GitHub API returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&res.release); err != nil {
		return res, fmt.Errorf("updater: parse release info: %w", err)
	}

	res.LatestVersion = normalizeVersion(res.release.TagName)
	res.ReleaseURL = res.release.HTMLURL
	res.UpdateAvailable = isNewer(res.CurrentVersion, res.LatestVersion)
	return res, nil
}

// Update replaces the binary at execPath with the latest release. An empty
// execPath means the running executable.
func (c *Client) Update(ctx context.Context, current, execPath string) (*Result, error) {
	res, err := c.Check(ctx, current)
	if err != nil {
		return res, err
	}
	if !res.UpdateAvailable {
		return res, ErrUpToDate
	}

	assetName := c.assetName(res.LatestVersion)
	var downloadURL string
	for _, a := range res.release.Assets {
		if a.Name == assetName {
			downloadURL = a.BrowserDownloadURL
			break
		}
	}
	if downloadURL == "" {
		return res, fmt.Errorf("updater: no release asset for %s/%s (looking for %s)", c.GOOS, c.GOARCH, assetName)
	}

	archive, err := c.download(ctx, downloadURL)
	if err != nil {
		return res, err
	}
	binary, err := c.extract(archive, assetName)
	if err != nil {
		return res, fmt.Errorf("updater: extract binary: %w", err)
	}

	if execPath == "" {
		if execPath, err = os.Executable(); err != nil {
			return res, fmt.Errorf("updater: find current executable: %w", err)
		}
	}
	if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
		return res, fmt.Errorf("updater: resolve symlinks: %w", err)
	}
	return res, c.replace(execPath, binary)
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("updater: build download request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("updater: download release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updater: download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize))
	if err != nil {
		return nil, fmt.Errorf("updater: read download: %w", err)
	}
	return data, nil
}

func (c *Client) replace(execPath string, binary []byte) error {
	tmpPath := execPath + ".new"
	if err := os.WriteFile(tmpPath, binary, 0o755); err != nil {
		return fmt.Errorf("updater: write new binary: %w", err)
	}

	// Windows cannot overwrite a running binary, but it can rename it.
	if c.GOOS == "windows" {
		oldPath := execPath + ".old"
		_ = os.Remove(oldPath)
		if err := os.Rename(execPath, oldPath); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("updater: back up current binary: %w", err)
		}
	}

	if err := os.Rename(tmpPath, execPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("updater: replace binary: %w", err)
	}
	return nil
}

// extract returns the bytes of the binary inside a .tar.gz or .zip archive.
func (c *Client) extract(archive []byte, assetName string) ([]byte, error) {
	if strings.HasSuffix(assetName, ".zip") {
		return c.extractZip(archive)
	}
	return c.extractTarGz(archive)
}

func (c *Client) isBinary(name string) bool {
	base := filepath.Base(name)
	return base == c.Binary || base == c.Binary+".exe"
}

func (c *Client) extractTarGz(archive []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if c.isBinary(header.Name) {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("%s binary not found in archive", c.Binary)
}

func (c *Client) extractZip(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if !c.isBinary(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s binary not found in archive", c.Binary)
}

// assetName matches the release archive naming:
// chattree_<version>_<os>_<arch>.<tar.gz|zip>
func (c *Client) assetName(version string) string {
	ext := "tar.gz"
	if c.GOOS == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", c.Binary, version, c.GOOS, c.GOARCH, ext)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewer reports whether latest is a higher semantic version than current.
func isNewer(current, latest string) bool {
	cv, lv := "v"+current, "v"+latest
	if !semver.IsValid(cv) || !semver.IsValid(lv) {
		return false
	}
	return semver.Compare(lv, cv) > 0
}

package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// --- helpers ---

func testClient(ts *httptest.Server, goos string) *Client {
	return &Client{
		Endpoint: ts.URL + "/latest",
		Binary:   DefaultBinary,
		HTTP:     ts.Client(),
		GOOS:     goos,
		GOARCH:   "amd64",
	}
}

func tarGz(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(content))}); err != nil {
		t.Fatalf("writing tar header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("writing tar body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipArchive(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// releaseServer serves a release with one asset whose body is archive.
func releaseServer(t *testing.T, tag, assetName string, archive []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		release := ReleaseInfo{
			TagName: tag,
			HTMLURL: "https://github.com/" + DefaultRepo + "/releases/tag/" + tag,
			Assets: []Asset{{
				Name:               assetName,
				BrowserDownloadURL: "http://" + r.Host + "/download/" + assetName,
			}},
		}
		_ = json.NewEncoder(w).Encode(release)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// --- versions ---

func TestIsNewer(t *testing.T) {
	tests := []struct {
		current, latest string
		want            bool
	}{
		{"0.2.0", "0.3.0", true},
		{"0.3.0", "0.3.0", false},
		{"0.3.1", "0.3.0", false},
		{"0.9.0", "0.10.0", true},
		{"1.0", "1.0.1", true},
		{"dev", "0.3.0", false},
		{"", "0.3.0", false},
		{"0.2.0", "", false},
	}
	for _, tt := range tests {
		if got := isNewer(tt.current, tt.latest); got != tt.want {
			t.Errorf("isNewer(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
		}
	}
}

func TestAssetName(t *testing.T) {
	c := &Client{Binary: "chattree", GOOS: "linux", GOARCH: "arm64"}
	if got := c.assetName("0.3.0"); got != "chattree_0.3.0_linux_arm64.tar.gz" {
		t.Errorf("assetName = %q", got)
	}
	c.GOOS = "windows"
	if got := c.assetName("0.3.0"); got != "chattree_0.3.0_windows_arm64.zip" {
		t.Errorf("assetName = %q", got)
	}
}

// --- Check ---

func TestCheck(t *testing.T) {
	ts := releaseServer(t, "v0.3.0", "unused", nil)
	c := testClient(ts, "linux")

	tests := []struct {
		current string
		want    bool
	}{
		{"v0.2.0", true},
		{"v0.3.0", false},
		{"dev", false},
	}
	for _, tt := range tests {
		res, err := c.Check(context.Background(), tt.current)
		if err != nil {
			t.Fatalf("Check(%s): %v", tt.current, err)
		}
		if res.UpdateAvailable != tt.want {
			t.Errorf("Check(%s).UpdateAvailable = %v, want %v", tt.current, res.UpdateAvailable, tt.want)
		}
		if res.LatestVersion != "0.3.0" {
			t.Errorf("LatestVersion = %q", res.LatestVersion)
		}
	}
}

func TestCheck_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer ts.Close()
		res, err := testClient(ts, "linux").Check(context.Background(), "v0.2.0")
		if err == nil {
			t.Fatal("expected error on 403")
		}
		if res.UpdateAvailable || res.CurrentVersion != "0.2.0" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("network", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		c := testClient(ts, "linux")
		ts.Close()
		if _, err := c.Check(context.Background(), "v0.2.0"); err == nil {
			t.Fatal("expected network error")
		}
	})
}

// --- Update ---

func TestUpdate_ReplacesBinary(t *testing.T) {
	newBinary := []byte("#!/bin/sh\necho updated\n")
	asset := "chattree_0.3.0_linux_amd64.tar.gz"
	ts := releaseServer(t, "v0.3.0", asset, tarGz(t, "chattree", newBinary))

	path := filepath.Join(t.TempDir(), "chattree")
	if err := os.WriteFile(path, []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := testClient(ts, "linux").Update(context.Background(), "v0.2.0", path)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.LatestVersion != "0.3.0" {
		t.Errorf("LatestVersion = %q", res.LatestVersion)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, newBinary) {
		t.Errorf("binary = %q, want the new one", got)
	}
	if _, err := os.Stat(path + ".new"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestUpdate_AlreadyLatest(t *testing.T) {
	ts := releaseServer(t, "v0.2.0", "x", nil)
	_, err := testClient(ts, "linux").Update(context.Background(), "v0.2.0", "")
	if !errors.Is(err, ErrUpToDate) {
		t.Errorf("err = %v, want ErrUpToDate", err)
	}
}

func TestUpdate_NoMatchingAsset(t *testing.T) {
	ts := releaseServer(t, "v0.3.0", "chattree_0.3.0_solaris_sparc.tar.gz", nil)
	if _, err := testClient(ts, "linux").Update(context.Background(), "v0.2.0", ""); err == nil {
		t.Fatal("expected error when no asset matches")
	}
}

// --- extract ---

func TestExtract(t *testing.T) {
	c := &Client{Binary: "chattree"}
	content := []byte("binary")

	tests := []struct {
		name    string
		archive []byte
		asset   string
		wantErr bool
	}{
		{"tar.gz", tarGz(t, "dist/chattree", content), "a.tar.gz", false},
		{"zip", zipArchive(t, "chattree.exe", content), "a.zip", false},
		{"tar.gz missing", tarGz(t, "README.md", content), "a.tar.gz", true},
		{"zip missing", zipArchive(t, "README.md", content), "a.zip", true},
		{"not gzip", []byte("garbage"), "a.tar.gz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.extract(tt.archive, tt.asset)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Errorf("extracted = %q", got)
			}
		})
	}
}

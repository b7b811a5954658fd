package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appErrors "cabplanner/internal/errors"
)

type rewriteTransport struct {
	base      http.RoundTripper
	targetURL string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.targetURL[7:] // strip "http://"
	return t.base.RoundTrip(req)
}

func newTestChecker(serverURL string) *Checker {
	return NewChecker("owner", "repo", WithHTTPClient(&http.Client{
		Transport: &rewriteTransport{
			base:      http.DefaultTransport,
			targetURL: serverURL,
		},
	}))
}

func TestNewChecker(t *testing.T) {
	c := NewChecker("owner", "repo")
	if c.owner != "owner" {
		t.Errorf("owner = %q, want %q", c.owner, "owner")
	}
	if c.repo != "repo" {
		t.Errorf("repo = %q, want %q", c.repo, "repo")
	}
	if c.httpClient == nil {
		t.Error("httpClient should not be nil")
	}
}

func TestCheckerCheck(t *testing.T) {
	release := ReleaseInfo{
		TagName:     "v2.0.0",
		Name:        "Release 2.0.0",
		Body:        "Release notes",
		HTMLURL:     "https://example.com/releases/tag/v2.0.0",
		PublishedAt: time.Now(),
		Assets: []ReleaseAsset{
			{Name: "cabplanner-2.0.0-checksums.txt", BrowserDownloadURL: "https://example.com/sums", Size: 128},
			{Name: "cabplanner-2.0.0.zip", BrowserDownloadURL: "https://example.com/pkg.zip", Size: 1024},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/repo/releases/latest" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(release)
	}))
	defer server.Close()

	result, err := newTestChecker(server.URL).Check(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	if !result.Available {
		t.Error("Available should be true when latest > current")
	}
	if result.LatestVersion != "2.0.0" {
		t.Errorf("LatestVersion = %q, want %q", result.LatestVersion, "2.0.0")
	}
	if result.ReleaseNotes != "Release notes" {
		t.Errorf("ReleaseNotes = %q, want %q", result.ReleaseNotes, "Release notes")
	}
	if result.Asset == nil {
		t.Fatal("Asset should not be nil")
	}
	if result.Asset.Name != "cabplanner-2.0.0.zip" {
		t.Errorf("Asset.Name = %q, want the zip asset", result.Asset.Name)
	}
}

func TestCheckerCheckNoUpdate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ReleaseInfo{TagName: "v1.0.0"})
	}))
	defer server.Close()

	result, err := newTestChecker(server.URL).Check(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.Available {
		t.Error("Available should be false when latest == current")
	}
}

func TestCheckerCheckNoMatchingAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ReleaseInfo{
			TagName: "v2.0.0",
			Assets:  []ReleaseAsset{{Name: "source.tar.gz"}},
		})
	}))
	defer server.Close()

	result, err := newTestChecker(server.URL).Check(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.Asset != nil {
		t.Errorf("Asset = %v, want nil when no zip asset exists", result.Asset)
	}
}

func TestCheckerCheckServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestChecker(server.URL).Check(context.Background(), "1.0.0")
	if err == nil {
		t.Fatal("Check() should fail on a 500 response")
	}
	if !appErrors.IsCode(err, appErrors.CodeNetworkFailure) {
		t.Errorf("error code = %v, want network_failure", appErrors.CodeOf(err))
	}
}

func TestCheckerCheckUnreachable(t *testing.T) {
	c := NewChecker("owner", "repo", WithHTTPClient(&http.Client{
		Transport: &rewriteTransport{
			base:      http.DefaultTransport,
			targetURL: "http://127.0.0.1:1", // nothing listens here
		},
		Timeout: time.Second,
	}))

	_, err := c.Check(context.Background(), "1.0.0")
	if err == nil {
		t.Fatal("Check() should fail when the feed is unreachable")
	}
	if !appErrors.IsCode(err, appErrors.CodeNetworkFailure) {
		t.Errorf("error code = %v, want network_failure", appErrors.CodeOf(err))
	}
}

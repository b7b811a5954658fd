package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	appErrors "cabplanner/internal/errors"
)

// Default configuration values.
const (
	DefaultRepoOwner = "bmruszaj"
	DefaultRepoName  = "cabplanner"
	DefaultTimeout   = 10 * time.Second
)

// ReleaseAsset represents a downloadable file attached to a release.
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// ReleaseInfo contains information about one release in the feed.
type ReleaseInfo struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	Body        string         `json:"body"`
	HTMLURL     string         `json:"html_url"`
	PublishedAt time.Time      `json:"published_at"`
	Prerelease  bool           `json:"prerelease"`
	Draft       bool           `json:"draft"`
	Assets      []ReleaseAsset `json:"assets"`
}

// CheckResult contains the outcome of a version check.
type CheckResult struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	ReleaseURL     string
	ReleaseNotes   string
	Asset          *ReleaseAsset // archive asset for this platform, nil if none
	CheckedAt      time.Time
}

// Checker queries the release feed and compares versions.
type Checker struct {
	owner      string
	repo       string
	httpClient *http.Client
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithHTTPClient sets a custom HTTP client for the checker.
func WithHTTPClient(client *http.Client) CheckerOption {
	return func(c *Checker) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		c.httpClient.Timeout = timeout
	}
}

// NewChecker creates a new version checker for the specified repository.
func NewChecker(owner, repo string, opts ...CheckerOption) *Checker {
	c := &Checker{
		owner: owner,
		repo:  repo,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches the latest release and compares it to the current version.
func (c *Checker) Check(ctx context.Context, currentVersion string) (*CheckResult, error) {
	release, err := c.fetchLatestRelease(ctx)
	if err != nil {
		return nil, err
	}

	latest := NormalizeTag(release.TagName)
	result := &CheckResult{
		Available:      IsNewer(currentVersion, latest),
		CurrentVersion: currentVersion,
		LatestVersion:  latest,
		ReleaseURL:     release.HTMLURL,
		ReleaseNotes:   release.Body,
		Asset:          findArchiveAsset(release.Assets),
		CheckedAt:      time.Now(),
	}
	return result, nil
}

// LatestRelease fetches the raw release descriptor, for callers that need
// the asset list rather than a comparison.
func (c *Checker) LatestRelease(ctx context.Context) (*ReleaseInfo, error) {
	return c.fetchLatestRelease(ctx)
}

func (c *Checker) fetchLatestRelease(ctx context.Context) (*ReleaseInfo, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", c.owner, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "cabplanner-updater")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeNetworkFailure, "release feed request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.New(appErrors.CodeNetworkFailure,
			fmt.Sprintf("release feed returned status %d", resp.StatusCode), nil)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, appErrors.New(appErrors.CodeNetworkFailure, "decode release feed response", err)
	}

	return &release, nil
}

// archiveExtension is the release archive extension expected for the
// current platform. Releases ship zip packages on every platform today;
// the indirection keeps asset selection in one place.
func archiveExtension() string {
	switch runtime.GOOS {
	default:
		return ".zip"
	}
}

// findArchiveAsset returns the first asset matching the platform's expected
// archive extension, or nil when the release carries none.
func findArchiveAsset(assets []ReleaseAsset) *ReleaseAsset {
	ext := archiveExtension()
	for i := range assets {
		if strings.HasSuffix(strings.ToLower(assets[i].Name), ext) {
			return &assets[i]
		}
	}
	return nil
}

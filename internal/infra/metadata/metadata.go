// Package metadata retrieves application names and icons from the Google
// Play listing pages and caches them on disk. Icons are resized and served
// as base64 PNG data URIs so the hub can render them without network access.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPlayBaseURL is the Google Play web listing base URL.
	DefaultPlayBaseURL = "https://play.google.com"

	// DefaultUserAgent identifies the bridge to the listing server.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

	// DefaultFetchTimeout bounds a single listing or icon request.
	DefaultFetchTimeout = 10 * time.Second

	cacheFilename = "app_metadata.json"
	iconSubdir    = "icons"
)

// AppMetadata is the resolved name and icon for one application package.
// Icon is a data URI, or empty when no icon could be obtained.
type AppMetadata struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Service resolves package identifiers to application metadata.
type Service struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	cacheDir   string

	mu    sync.Mutex
	cache map[string]AppMetadata
}

// Option is a functional option for configuring the metadata service.
type Option func(*Service)

// WithBaseURL sets a custom listing base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(s *Service) {
		s.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// NewService creates a metadata service caching under cacheDir.
func NewService(cacheDir string, opts ...Option) *Service {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.HTTPClient.Timeout = DefaultFetchTimeout
	retry.Logger = nil

	s := &Service{
		baseURL:    DefaultPlayBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: retry.StandardClient(),
		cacheDir:   cacheDir,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Join(cacheDir, iconSubdir), 0o755); err != nil {
		log.Warn().Err(err).Msg("Failed to create icon cache directory")
	}
	s.cache = s.loadCache()
	return s
}

// GetAppMetadata resolves the metadata for a package identifier. Cached
// entries are served from disk; misses hit the Play listing. When nothing
// can be resolved the package identifier itself is returned as the name.
func (s *Service) GetAppMetadata(ctx context.Context, packageID string) AppMetadata {
	s.mu.Lock()
	entry, hit := s.cache[packageID]
	s.mu.Unlock()

	if hit {
		log.Debug().Str("package", packageID).Msg("Metadata cache hit")
		return AppMetadata{Name: entry.Name, Icon: s.encodeIcon(entry.Icon)}
	}

	fetched, err := s.fetchListing(ctx, packageID)
	if err != nil {
		log.Warn().Err(err).Str("package", packageID).Msg("Metadata fetch failed")
		return AppMetadata{Name: packageID}
	}

	iconName := ""
	if fetched.iconURL != "" {
		iconName, err = s.downloadIcon(ctx, fetched.iconURL, packageID)
		if err != nil {
			log.Warn().Err(err).Str("package", packageID).Msg("Icon download failed")
		}
	}

	entry = AppMetadata{Name: fetched.name, Icon: iconName}
	s.mu.Lock()
	s.cache[packageID] = entry
	err = s.saveCacheLocked()
	s.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to save metadata cache")
	}

	return AppMetadata{Name: entry.Name, Icon: s.encodeIcon(entry.Icon)}
}

// AppName resolves only the name for a package identifier, without icon work.
func (s *Service) AppName(ctx context.Context, packageID string) (string, bool) {
	s.mu.Lock()
	entry, hit := s.cache[packageID]
	s.mu.Unlock()
	if hit {
		return entry.Name, true
	}
	meta := s.GetAppMetadata(ctx, packageID)
	return meta.Name, meta.Name != packageID
}

type listing struct {
	name    string
	iconURL string
}

// ldJSON is the subset of the schema.org payload embedded in listing pages.
type ldJSON struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

var ldScriptRe = regexp.MustCompile(`(?s)<script type="application/ld\+json"[^>]*>(.*?)</script>`)

func (s *Service) fetchListing(ctx context.Context, packageID string) (listing, error) {
	listingURL := fmt.Sprintf("%s/store/apps/details?id=%s&hl=en&gl=US",
		s.baseURL, url.QueryEscape(packageID))

	log.Debug().Str("package", packageID).Str("url", listingURL).Msg("Fetching app listing")

	body, err := s.get(ctx, listingURL)
	if err != nil {
		return listing{}, err
	}

	m := ldScriptRe.FindSubmatch(body)
	if m == nil {
		return listing{}, fmt.Errorf("no structured data in listing for %s", packageID)
	}
	var data ldJSON
	if err := json.Unmarshal(m[1], &data); err != nil {
		return listing{}, fmt.Errorf("parse structured data: %w", err)
	}
	if data.Name == "" {
		return listing{}, fmt.Errorf("listing for %s has no name", packageID)
	}
	return listing{name: data.Name, iconURL: data.Image}, nil
}

func (s *Service) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Service) iconPath(iconName string) string {
	return filepath.Join(s.cacheDir, iconSubdir, iconName)
}

func (s *Service) cachePath() string {
	return filepath.Join(s.cacheDir, cacheFilename)
}

func (s *Service) loadCache() map[string]AppMetadata {
	data, err := os.ReadFile(s.cachePath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Failed to load metadata cache")
		}
		return make(map[string]AppMetadata)
	}
	cache := make(map[string]AppMetadata)
	if err := json.Unmarshal(data, &cache); err != nil {
		log.Warn().Err(err).Msg("Invalid metadata cache, starting empty")
		return make(map[string]AppMetadata)
	}
	log.Debug().Int("entries", len(cache)).Msg("Loaded metadata cache")
	return cache
}

func (s *Service) saveCacheLocked() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.cachePath(), data, 0o644)
}

// FilterDataURIs replaces base64 image payloads in a string with a short
// placeholder so attribute dumps stay readable in logs.
func FilterDataURIs(in string) string {
	const marker = "data:image"
	idx := strings.Index(in, marker)
	if idx < 0 {
		return in
	}
	var b strings.Builder
	for idx >= 0 {
		b.WriteString(in[:idx])
		b.WriteString("data:image...")
		rest := in[idx:]
		end := strings.IndexAny(rest, `"' ,}`)
		if end < 0 {
			in = ""
		} else {
			in = rest[end:]
		}
		idx = strings.Index(in, marker)
	}
	b.WriteString(in)
	return b.String()
}

package registry

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/auth"
	"github.com/glorpus-work/extly/pkg/download"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/platform"
)

// HTTPSource fetches its index over HTTP into a cache directory and re-fetches
// it once the cached copy is older than the configured TTL.
type HTTPSource struct {
	name       string
	indexURL   *url.URL
	cacheDir   string
	ttl        time.Duration
	downloader download.Manager
	auth       auth.Authenticator
	loader     *indexLoader
}

// NewHTTPSource creates a source for the index at indexURL. A URL that does
// not name a JSON document gets index.json appended.
func NewHTTPSource(name string, indexURL *url.URL, cacheDir string, ttl time.Duration, runtime platform.Platform, downloader download.Manager) *HTTPSource {
	u := *indexURL
	if !strings.EqualFold(path.Ext(u.Path), ".json") {
		u.Path = path.Join("/", u.Path, IndexFileName)
	}
	s := &HTTPSource{
		name:       name,
		indexURL:   &u,
		cacheDir:   cacheDir,
		ttl:        ttl,
		downloader: downloader,
	}
	s.loader = &indexLoader{load: s.loadIndex, runtime: runtime}
	return s
}

func (s *HTTPSource) Name() string { return s.name }

// WithAuth makes the source send a with every request to the index host and
// returns the source.
func (s *HTTPSource) WithAuth(a auth.Authenticator) *HTTPSource {
	s.auth = auth.ForHost(s.indexURL.Host, a)
	return s
}

// IndexURL returns the resolved index location.
func (s *HTTPSource) IndexURL() *url.URL { return s.indexURL }

func (s *HTTPSource) loadIndex(ctx context.Context) (*Index, error) {
	return s.fetchIndex(ctx, s.ttl)
}

// Refresh downloads the index again regardless of the age of the cached copy.
func (s *HTTPSource) Refresh(ctx context.Context) error {
	return s.loader.reload(ctx, func(ctx context.Context) (*Index, error) {
		return s.fetchIndex(ctx, time.Nanosecond)
	})
}

func (s *HTTPSource) fetchIndex(ctx context.Context, maxAge time.Duration) (*Index, error) {
	file, err := s.downloader.Fetch(ctx, download.Item{
		ID:       s.name + " index",
		URL:      s.indexURL,
		Filename: IndexFileName,
		MaxAge:   maxAge,
		Auth:     s.auth,
	}, download.Options{Dir: s.cacheDir})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrSourceUnreachable, s.name, err)
	}
	logger.Debug("Loaded package index", logger.Fields{"source": s.name, "path": file})
	idx, err := ParseIndexFromFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrSourceUnreachable, s.name, err)
	}
	return idx, nil
}

func (s *HTTPSource) Versions(ctx context.Context, id string) ([]*version.Version, error) {
	return s.loader.versions(ctx, id)
}

func (s *HTTPSource) Package(ctx context.Context, identity model.PackageIdentity) (*PackageInfo, error) {
	entry, err := s.loader.entry(ctx, identity)
	if err != nil || entry == nil {
		return nil, err
	}
	return newPackageInfo(entry), nil
}

func (s *HTTPSource) Download(ctx context.Context, identity model.PackageIdentity, dir string) (string, error) {
	entry, err := s.loader.entry(ctx, identity)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", errors.ErrPackageNotFoundWithID(identity.String())
	}
	ref, err := url.Parse(entry.URL)
	if err != nil {
		return "", errors.Wrapf(errors.ErrDownloadFailed, "invalid archive URL %q", entry.URL)
	}
	return fetchArchive(ctx, s.downloader, entry, s.indexURL.ResolveReference(ref), dir, s.auth)
}

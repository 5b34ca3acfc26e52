package registry

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/auth"
	"github.com/glorpus-work/extly/pkg/config"
	"github.com/glorpus-work/extly/pkg/download"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/platform"
)

// OpenOptions carry what sources need beyond their configuration entry.
type OpenOptions struct {
	Downloader download.Manager
	// CacheDir is the root under which remote sources keep their files;
	// empty selects the user cache directory.
	CacheDir string
	IndexTTL time.Duration
	Runtime  platform.Platform
	// CacheSize enables query memoization when positive.
	CacheSize int
	// BaseDir resolves relative local source paths.
	BaseDir string
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Open builds the source described by cfg: http and https URLs become an
// HTTPSource, anything else a FileSource.
func Open(cfg *config.SourceConfig, opts OpenOptions) (Source, error) {
	if cfg == nil || strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.ErrSourceNameEmpty
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.Wrapf(errors.ErrSourceURLEmpty, "source %s", cfg.Name)
	}

	var src Source
	u, err := url.Parse(cfg.URL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if opts.Downloader == nil {
			return nil, errors.Wrapf(errors.ErrDownloadFailed, "source %s needs a downloader", cfg.Name)
		}
		dir, err := sourceCacheDir(opts.CacheDir, cfg.Name)
		if err != nil {
			return nil, err
		}
		httpSrc := NewHTTPSource(cfg.Name, u, dir, opts.IndexTTL, opts.Runtime, opts.Downloader)
		if cfg.Auth != nil {
			a, err := auth.New(cfg.Auth.Settings())
			if err != nil {
				return nil, errors.Wrapf(err, "source %s", cfg.Name)
			}
			httpSrc.WithAuth(a)
		}
		src = httpSrc
	} else {
		if cfg.Auth != nil {
			logger.Warn("Ignoring credentials of a local source", logger.Fields{"source": cfg.Name})
		}
		location := cfg.URL
		if err == nil && u.Scheme == "file" {
			location = filepath.FromSlash(u.Path)
		}
		if !filepath.IsAbs(location) && opts.BaseDir != "" {
			location = filepath.Join(opts.BaseDir, location)
		}
		src = NewFileSource(cfg.Name, location, opts.Runtime, opts.Downloader)
	}

	if opts.CacheSize > 0 {
		return NewCachingSource(src, opts.CacheSize)
	}
	return src, nil
}

// OpenAll opens every enabled source, ordered by descending priority and
// keeping configuration order among equal priorities.
func OpenAll(sources []*config.SourceConfig, opts OpenOptions) ([]Source, error) {
	enabled := (&config.Config{Sources: sources}).EnabledSources()
	out := make([]Source, 0, len(enabled))
	for _, cfg := range enabled {
		src, err := Open(cfg, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func sourceCacheDir(root, name string) (string, error) {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	if root == "" {
		return fsutil.GetSourceCacheDir(safe)
	}
	return filepath.Join(root, "sources", safe), nil
}

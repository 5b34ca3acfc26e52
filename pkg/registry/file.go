package registry

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/auth"
	"github.com/glorpus-work/extly/pkg/download"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/platform"
)

// FileSource reads an index from the local filesystem. Relative archive URLs
// are resolved against the folder holding the index.
type FileSource struct {
	name      string
	indexPath string
	// downloader fetches entries whose URL is remote; nil rejects them.
	downloader download.Manager
	loader     *indexLoader
}

// NewFileSource creates a source over the index at location, which is either
// the index file or the folder containing index.json.
func NewFileSource(name, location string, runtime platform.Platform, downloader download.Manager) *FileSource {
	s := &FileSource{
		name:       name,
		indexPath:  IndexPath(location),
		downloader: downloader,
	}
	s.loader = &indexLoader{load: s.loadIndex, runtime: runtime}
	return s
}

func (s *FileSource) Name() string { return s.name }

func (s *FileSource) loadIndex(_ context.Context) (*Index, error) {
	logger.Debug("Reading package index", logger.Fields{"source": s.name, "path": s.indexPath})
	idx, err := ParseIndexFromFile(s.indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrSourceUnreachable, s.name, err)
	}
	return idx, nil
}

// Refresh reads the index file again.
func (s *FileSource) Refresh(ctx context.Context) error {
	return s.loader.reload(ctx, s.loadIndex)
}

func (s *FileSource) Versions(ctx context.Context, id string) ([]*version.Version, error) {
	return s.loader.versions(ctx, id)
}

func (s *FileSource) Package(ctx context.Context, identity model.PackageIdentity) (*PackageInfo, error) {
	entry, err := s.loader.entry(ctx, identity)
	if err != nil || entry == nil {
		return nil, err
	}
	return newPackageInfo(entry), nil
}

func (s *FileSource) Download(ctx context.Context, identity model.PackageIdentity, dir string) (string, error) {
	entry, err := s.loader.entry(ctx, identity)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", errors.ErrPackageNotFoundWithID(identity.String())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	u, err := url.Parse(entry.URL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if s.downloader == nil {
			return "", errors.Wrapf(errors.ErrDownloadFailed, "%s: remote archive %s without downloader", s.name, entry.URL)
		}
		return fetchArchive(ctx, s.downloader, entry, u, dir, nil)
	}

	path := s.localPath(entry.URL)
	if !fsutil.Exists(path) {
		return "", errors.Wrapf(errors.ErrFileNotFound, "archive for %s", identity)
	}
	if entry.Checksum != "" {
		ok, err := download.VerifySHA256(path, entry.Checksum)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.Wrapf(errors.ErrFileHashMismatch, "archive for %s", identity)
		}
	}
	return path, nil
}

func (s *FileSource) localPath(ref string) string {
	if strings.HasPrefix(ref, "file://") {
		if u, err := url.Parse(ref); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	p := filepath.FromSlash(ref)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(s.indexPath), p)
}

// fetchArchive downloads an entry's archive into dir with checksum
// verification.
func fetchArchive(ctx context.Context, downloader download.Manager, entry *Entry, u *url.URL, dir string, a auth.Authenticator) (string, error) {
	base := filepath.Base(u.Path)
	if base == "." || base == "/" {
		base = "package"
	}
	return downloader.Fetch(ctx, download.Item{
		ID:       entry.ID + "@" + entry.Version,
		URL:      u,
		Checksum: entry.Checksum,
		Filename: strings.ToLower(entry.ID) + "-" + entry.Version + "-" + base,
		Auth:     a,
	}, download.Options{Dir: dir})
}

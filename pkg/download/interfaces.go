package download

import (
	"context"
	"net/url"
	"time"

	"github.com/glorpus-work/extly/pkg/auth"
)

//go:generate mockgen -destination=./mocks/manager.go -package=mocks . Manager

// Manager downloads remote registry indexes and package archives.
type Manager interface {
	// Fetch downloads a single item into opts.Dir and returns the absolute
	// local file path. An existing file is reused when it is still fresh and
	// matches the checksum.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)
}

// Item represents one remote resource to download.
type Item struct {
	ID       string             // stable identifier used in log output
	URL      *url.URL           // source URL to download
	Checksum string             // optional hex-encoded SHA-256 checksum; verified when set
	Filename string             // optional preferred filename; derived from checksum or URL otherwise
	MaxAge   time.Duration      // reuse an existing file only when younger than this; zero means no limit
	Auth     auth.Authenticator // optional credentials applied to the request
}

// Options control the behavior of the download manager.
type Options struct {
	Dir string // destination directory. Must be absolute.
}

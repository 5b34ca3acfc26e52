// Package model holds the data types shared by the resolvers, the installer,
// the loader and the watcher.
package model

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/versioning"
)

// WatchMode governs how aggressively a local extension is monitored.
type WatchMode string

const (
	WatchNone   WatchMode = "none"
	WatchOutput WatchMode = "output"
	WatchFull   WatchMode = "full"
)

// ParseWatchMode accepts the configured spelling of a watch mode. An empty
// string means WatchNone.
func ParseWatchMode(s string) (WatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return WatchNone, nil
	case "output", "outputonly", "output_only":
		return WatchOutput, nil
	case "full":
		return WatchFull, nil
	}
	return "", fmt.Errorf("%w: %q, must be one of: none, output, full", errors.ErrInvalidWatchMode, s)
}

// ExtensionSpec requests one registry extension.
type ExtensionSpec struct {
	PackageID       string
	VersionRange    string
	AllowPrerelease bool
}

// Validate reports configuration errors in the spec.
func (s ExtensionSpec) Validate() error {
	if strings.TrimSpace(s.PackageID) == "" {
		return errors.ErrMissingPackageID
	}
	if _, err := versioning.ParseRange(s.VersionRange); err != nil {
		return errors.Wrapf(err, "extension %s", s.PackageID)
	}
	return nil
}

// Range parses the spec's version range.
func (s ExtensionSpec) Range() (versioning.Range, error) {
	return versioning.ParseRange(s.VersionRange)
}

// LocalExtensionSpec requests one locally built extension.
type LocalExtensionSpec struct {
	Folder string
	Watch  WatchMode
}

// Validate reports configuration errors in the spec.
func (s LocalExtensionSpec) Validate() error {
	if strings.TrimSpace(s.Folder) == "" {
		return errors.Wrap(errors.ErrInvalidPath, "local extension folder cannot be empty")
	}
	if _, err := ParseWatchMode(string(s.Watch)); err != nil {
		return err
	}
	return nil
}

// DependencyRequest is a dependency declared by a registry package or a
// local project.
type DependencyRequest struct {
	ID           string `json:"id" yaml:"id"`
	VersionRange string `json:"range,omitempty" yaml:"range,omitempty"`
}

func (d DependencyRequest) String() string {
	if d.VersionRange == "" {
		return d.ID
	}
	return d.ID + " " + d.VersionRange
}

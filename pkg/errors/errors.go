// Package errors defines the error vocabulary of the extension subsystem.
// Sentinel errors are grouped by domain and wrapped with context as they
// propagate; fatal failures leave the subsystem as a single *ExtensionError
// so host code can catch one kind.
package errors

import (
	"errors"
	"fmt"
)

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename temporary config file")
	ErrInvalidPath       = fmt.Errorf("invalid path")
	ErrMissingPackageID  = fmt.Errorf("package id cannot be empty")
	ErrDuplicatePackage  = fmt.Errorf("package requested more than once")
	ErrInvalidWatchMode  = fmt.Errorf("invalid watch mode")
	ErrInvalidLogLevel   = fmt.Errorf("invalid log level")
	ErrInvalidOutput     = fmt.Errorf("invalid output format")
	ErrSourceNameEmpty   = fmt.Errorf("source name cannot be empty")
	ErrSourceURLEmpty    = fmt.Errorf("source URL cannot be empty")
	ErrSourceExists      = fmt.Errorf("source already exists")
	ErrNegativeDuration  = fmt.Errorf("duration cannot be negative")
	ErrInvalidSetting    = fmt.Errorf("invalid setting")
	ErrUnknownConfigKey  = fmt.Errorf("unknown configuration key")
	ErrInvalidAuth       = fmt.Errorf("invalid source credentials")

	// Version errors.
	ErrInvalidVersion      = fmt.Errorf("invalid version")
	ErrInvalidVersionRange = fmt.Errorf("invalid version range")

	// Resolution errors.
	ErrNoSources          = fmt.Errorf("no package sources configured")
	ErrSourceUnreachable  = fmt.Errorf("package source unreachable")
	ErrInvalidIndex       = fmt.Errorf("invalid package index")
	ErrPackageNotFound    = fmt.Errorf("package not found")
	ErrVersionConflict    = fmt.Errorf("no version satisfies all dependency constraints")
	ErrDanglingDependency = fmt.Errorf("dependency not present in installed packages")
	ErrInvalidPackageSet  = fmt.Errorf("package set is not installable")

	// Build errors.
	ErrProjectNotFound   = fmt.Errorf("no recognized project file found")
	ErrProjectParse      = fmt.Errorf("failed to parse project file")
	ErrBuildToolNotFound = fmt.Errorf("build tool not found")
	ErrBuildFailed       = fmt.Errorf("build failed")

	// Cache errors.
	ErrCacheCorrupt = fmt.Errorf("dependency cache is corrupt")
	ErrCacheLocked  = fmt.Errorf("dependency cache is locked by another process")

	// Download errors.
	ErrDownloadFailed   = fmt.Errorf("download failed")
	ErrFileHashMismatch = fmt.Errorf("file hash mismatch")
	ErrFileNotFound     = fmt.Errorf("file not found")

	// Load errors.
	ErrEntryPointNotFound      = fmt.Errorf("entry point expected but not found")
	ErrNoImplementation        = fmt.Errorf("no type implementing the extension capability")
	ErrAmbiguousImplementation = fmt.Errorf("more than one type implements the extension capability")
	ErrBadConstructor          = fmt.Errorf("no constructor with supported parameters")
	ErrConstruction            = fmt.Errorf("extension construction failed")
	ErrLibraryNotFound         = fmt.Errorf("library not found in load context")
	ErrContextUnloaded         = fmt.Errorf("load context has been unloaded")
	ErrPluginUnsupported       = fmt.Errorf("module format not supported")

	// Hook errors.
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
)

// ExtensionError is the single error type raised when the extension subsystem
// fails. Op names the failing stage (resolve, build, install, load, ...),
// Package the offending package id when one is known.
type ExtensionError struct {
	Op      string
	Package string
	Err     error
}

func (e *ExtensionError) Error() string {
	if e.Package == "" {
		return fmt.Sprintf("extension %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("extension %s %s: %v", e.Op, e.Package, e.Err)
}

func (e *ExtensionError) Unwrap() error {
	return e.Err
}

// Fail wraps err into an *ExtensionError. An error that already is (or wraps)
// an *ExtensionError is returned unchanged.
func Fail(op, pkg string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExtensionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExtensionError{Op: op, Package: pkg, Err: err}
}

// AsExtensionError reports whether err carries an *ExtensionError and returns it.
func AsExtensionError(err error) (*ExtensionError, bool) {
	var ee *ExtensionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrPackageNotFoundWithID names the package that could not be found.
func ErrPackageNotFoundWithID(id string) error {
	return fmt.Errorf("%w: %s", ErrPackageNotFound, id)
}

// ErrInvalidVersionRangeWithValue names the range string that failed to parse.
func ErrInvalidVersionRangeWithValue(value string) error {
	return fmt.Errorf("%w: %q", ErrInvalidVersionRange, value)
}

// ErrBuildFailedWithOutput attaches the captured build output to the failure.
func ErrBuildFailedWithOutput(project string, exitCode int, output string) error {
	return fmt.Errorf("%w: %s exited with code %d:\n%s", ErrBuildFailed, project, exitCode, output)
}

// ErrInvalidLogLevelWithDetails is a helper to create a wrapped error with the invalid level and valid options.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}

// ErrInvalidOutputWithDetails is a helper to create a wrapped error with the invalid format and valid options.
func ErrInvalidOutputWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidOutput, format)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

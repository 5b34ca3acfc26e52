package fsutil

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SkipFunc reports whether the entry at rel (slash separated, relative to the
// copy root) should be left out. Returning true for a directory skips its
// whole subtree.
type SkipFunc func(rel string, d fs.DirEntry) bool

// CopyDir recursively copies src into dst, overwriting existing files.
// Cancellation is checked before each file.
func CopyDir(ctx context.Context, src, dst string, skip SkipFunc) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk error at %q: %w", path, err)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path from %q to %q: %w", src, path, err)
		}
		if rel != "." && skip != nil && skip(filepath.ToSlash(rel), d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, DirModeDefault)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return CopyFile(path, target, info.Mode().Perm())
	})
}

// CopyFile copies a single file from src to dst with the given permissions.
func CopyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return classifyCopyError(err, src, dst, "open")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return classifyCopyError(err, src, dst, "create")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return classifyCopyError(err, src, dst, "copy")
	}
	return out.Close()
}

func classifyCopyError(err error, src, dst, op string) error {
	switch {
	case os.IsPermission(err):
		return fmt.Errorf("permission denied: cannot %s file from %q to %q: %w", op, src, dst, err)
	case os.IsNotExist(err) && op == "open":
		return fmt.Errorf("source path not found: %q: %w", src, err)
	case strings.Contains(strings.ToLower(err.Error()), "no space left on device"):
		return fmt.Errorf("no space left on device at %q: %w", dst, err)
	}
	return fmt.Errorf("failed to %s from %q to %q: %w", op, src, dst, err)
}

// ListFiles returns every regular file under root as slash separated paths
// relative to root, honoring skip.
func ListFiles(root string, skip SkipFunc) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if skip != nil && skip(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

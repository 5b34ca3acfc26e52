package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
)

// LoadHooksFromDir registers every <packageDir>/hooks/<type>.tengo script
// with the executor. Unknown hook types are ignored.
func LoadHooksFromDir(executor *TengoExecutor, packageDir string) error {
	hooksDir := filepath.Join(packageDir, HookDir)
	entries, err := os.ReadDir(hooksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read hook directory %s", hooksDir)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ScriptExtension {
			continue
		}
		hookType := HookType(strings.TrimSuffix(entry.Name(), ScriptExtension))
		switch hookType {
		case PostInstall, PostBuild:
		default:
			continue
		}

		hookPath := filepath.Join(hooksDir, entry.Name())
		content, err := os.ReadFile(hookPath)
		if err != nil {
			return errors.Wrapf(err, "error reading hook file %s", hookPath)
		}
		executor.AddScript(hookType, string(content))
	}
	return nil
}

// Run executes the hookType script shipped in packageDir, if there is one.
func Run(ctx context.Context, packageDir string, hookType HookType, hc HookContext) error {
	executor := NewTengoExecutor()
	if err := LoadHooksFromDir(executor, packageDir); err != nil {
		return err
	}
	if !executor.HasScript(hookType) {
		return nil
	}
	logger.Debug("Running hook", logger.Fields{"hook": string(hookType), "package": hc.PackageID})
	return executor.Execute(ctx, hookType, hc)
}

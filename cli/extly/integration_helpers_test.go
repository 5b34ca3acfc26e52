//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/extly/pkg/config"
	"github.com/glorpus-work/extly/test/testutil"
)

// fixtureRegistry creates a registry where Acme.Greeter depends on Acme.Core.
func fixtureRegistry(t *testing.T) *testutil.Registry {
	t.Helper()
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Acme.Greeter", Version: "2.0.0", Tags: []string{"plugin"},
		EntryPoint: "lib/acme.greeter.so", Dependencies: testutil.Deps("Acme.Core [1.0,2.0)")})
	reg.Add(testutil.Package{ID: "Acme.Core", Version: "1.5.0"})
	return reg
}

// writeConfig stores a configuration rooted in a temporary host directory
// and returns its path together with the extensions directory.
func writeConfig(t *testing.T, registryDir string, extensions ...config.ExtensionConfig) (string, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Host.RootDir = root
	cfg.Settings.CacheDir = filepath.Join(root, "cache")
	cfg.Settings.LogLevel = "error"
	cfg.Extensions = append(cfg.Extensions, extensions...)
	if registryDir != "" {
		require.NoError(t, cfg.AddSource("fixture", registryDir, 10))
	}

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, filepath.Join(root, config.DefaultExtensionsDirName)
}

// runCLI executes the root command with args and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

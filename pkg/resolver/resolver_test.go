package resolver_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/extly/pkg/config"
	"github.com/glorpus-work/extly/pkg/depcache"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/local"
	localmocks "github.com/glorpus-work/extly/pkg/local/mocks"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/plan"
	planmocks "github.com/glorpus-work/extly/pkg/plan/mocks"
	"github.com/glorpus-work/extly/pkg/platform"
	"github.com/glorpus-work/extly/pkg/registry"
	"github.com/glorpus-work/extly/pkg/remote"
	"github.com/glorpus-work/extly/pkg/resolver"
	"github.com/glorpus-work/extly/pkg/resolver/mocks"
	"github.com/glorpus-work/extly/test/testutil"
)

var anyPlatform = platform.Platform{OS: platform.Any, Arch: platform.Any}

// countingSource counts the queries that reach the wrapped source.
type countingSource struct {
	registry.Source
	queries atomic.Int32
}

func (s *countingSource) Versions(ctx context.Context, id string) ([]*version.Version, error) {
	s.queries.Add(1)
	return s.Source.Versions(ctx, id)
}

func (s *countingSource) Package(ctx context.Context, identity model.PackageIdentity) (*registry.PackageInfo, error) {
	s.queries.Add(1)
	return s.Source.Package(ctx, identity)
}

func environment(t *testing.T) model.HostEnvironment {
	t.Helper()
	root := t.TempDir()
	env, err := model.NewHostEnvironment(root, filepath.Join(root, "extensions"))
	require.NoError(t, err)
	return env
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// seedCache installs a fake package folder per id and records them as roots.
func seedCache(t *testing.T, env model.HostEnvironment, cache *depcache.Cache, ids ...string) *model.InstalledPackages {
	t.Helper()
	installed := &model.InstalledPackages{}
	for _, id := range ids {
		folder := filepath.Join(env.ExtensionsDir, id, "1.0.0")
		writeFiles(t, folder, map[string]string{"lib/" + id + ".so": id})
		installed.Packages = append(installed.Packages, &model.PackageMetadata{
			ID:            id,
			Version:       "1.0.0",
			InstallFolder: folder,
			LibraryFiles:  []string{"lib/" + id + ".so"},
			Kind:          model.KindRoot,
		})
	}
	require.NoError(t, cache.Save(context.Background(), installed))
	return installed
}

func TestCachedRegistry_SecondRunSkipsRegistry(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0", Dependencies: testutil.Deps("Bar [1.0,)")})
	reg.Add(testutil.Package{ID: "Bar", Version: "1.0.0"})

	env := environment(t)
	src := &countingSource{Source: registry.NewFileSource("main", reg.Dir, anyPlatform, nil)}
	cache := depcache.New(env.ExtensionsDir)
	rem := remote.New(remote.Options{Sources: []registry.Source{src}, InstallDir: env.ExtensionsDir, Cache: cache})
	cr := resolver.NewCachedRegistry(cache, rem)

	req := resolver.Request{Specs: []model.ExtensionSpec{{PackageID: "Foo"}}, Environment: env}

	set, err := cr.Resolve(context.Background(), resolver.NewContext(req))
	require.NoError(t, err)
	first, err := set.Install(context.Background())
	require.NoError(t, err)
	assert.Positive(t, src.queries.Load())

	src.queries.Store(0)
	set, err = cr.Resolve(context.Background(), resolver.NewContext(req))
	require.NoError(t, err)
	second, err := set.Install(context.Background())
	require.NoError(t, err)

	assert.Zero(t, src.queries.Load())
	assert.ElementsMatch(t, first.IDs(), second.IDs())
	assert.Equal(t, first.Find("Bar").InstallFolder, second.Find("Bar").InstallFolder)
}

func TestCachedRegistry_PrereleaseBoundWithoutPermission(t *testing.T) {
	ctx := context.Background()
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0-beta"})

	env := environment(t)
	src := &countingSource{Source: registry.NewFileSource("main", reg.Dir, anyPlatform, nil)}
	cache := depcache.New(env.ExtensionsDir)
	rem := remote.New(remote.Options{Sources: []registry.Source{src}, InstallDir: env.ExtensionsDir, Cache: cache})
	cr := resolver.NewCachedRegistry(cache, rem)

	req := resolver.Request{
		Specs:       []model.ExtensionSpec{{PackageID: "Foo", VersionRange: "[1.0.0-beta,2.0.0)"}},
		Environment: env,
	}

	set, err := cr.Resolve(ctx, resolver.NewContext(req))
	require.NoError(t, err)
	assert.False(t, set.Valid())
	require.Error(t, set.Err())
	assert.Contains(t, set.Err().Error(), "Foo")

	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0"})
	src.Source = registry.NewFileSource("main", reg.Dir, anyPlatform, nil)

	set, err = cr.Resolve(ctx, resolver.NewContext(req))
	require.NoError(t, err)
	first, err := set.Install(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", first.Find("Foo").Version)

	src.queries.Store(0)
	set, err = cr.Resolve(ctx, resolver.NewContext(req))
	require.NoError(t, err)
	_, err = set.Install(ctx)
	require.NoError(t, err)
	assert.Zero(t, src.queries.Load())
}

func TestCachedRegistry_ExtraCachedRootTriggersResolution(t *testing.T) {
	env := environment(t)
	cache := depcache.New(env.ExtensionsDir)
	seedCache(t, env, cache, "Foo", "Bar")

	specs := []model.ExtensionSpec{{PackageID: "Foo"}}
	ctrl := gomock.NewController(t)
	registryMock := mocks.NewMockRegistry(ctrl)
	registryMock.EXPECT().Resolve(gomock.Any(), specs, gomock.Nil(), gomock.Any()).Return(plan.Empty()).Times(1)

	cr := resolver.NewCachedRegistry(cache, registryMock)
	_, err := cr.Resolve(context.Background(), resolver.NewContext(resolver.Request{Specs: specs}))
	require.NoError(t, err)
}

func TestCachedRegistry_UsesValidCache(t *testing.T) {
	env := environment(t)
	cache := depcache.New(env.ExtensionsDir)
	seedCache(t, env, cache, "Foo", "Bar")

	ctrl := gomock.NewController(t)
	registryMock := mocks.NewMockRegistry(ctrl)

	cr := resolver.NewCachedRegistry(cache, registryMock)
	set, err := cr.Resolve(context.Background(), resolver.NewContext(resolver.Request{
		Specs: []model.ExtensionSpec{{PackageID: "foo", VersionRange: "[1.0,2.0)"}, {PackageID: "Bar"}},
	}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Foo", "Bar"}, set.PackageIDs())
}

func TestCachedRegistry_Misses(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env model.HostEnvironment, cache *depcache.Cache)
		specs []model.ExtensionSpec
	}{
		{
			name:  "no cache",
			setup: func(*testing.T, model.HostEnvironment, *depcache.Cache) {},
			specs: []model.ExtensionSpec{{PackageID: "Foo"}},
		},
		{
			name: "corrupt cache",
			setup: func(t *testing.T, env model.HostEnvironment, cache *depcache.Cache) {
				writeFiles(t, filepath.Dir(cache.Path()), map[string]string{filepath.Base(cache.Path()): "{not json"})
			},
			specs: []model.ExtensionSpec{{PackageID: "Foo"}},
		},
		{
			name: "missing files",
			setup: func(t *testing.T, env model.HostEnvironment, cache *depcache.Cache) {
				installed := seedCache(t, env, cache, "Foo")
				require.NoError(t, os.RemoveAll(installed.Packages[0].InstallFolder))
			},
			specs: []model.ExtensionSpec{{PackageID: "Foo"}},
		},
		{
			name: "version out of range",
			setup: func(t *testing.T, env model.HostEnvironment, cache *depcache.Cache) {
				seedCache(t, env, cache, "Foo")
			},
			specs: []model.ExtensionSpec{{PackageID: "Foo", VersionRange: "[2.0,)"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := environment(t)
			cache := depcache.New(env.ExtensionsDir)
			tt.setup(t, env, cache)

			ctrl := gomock.NewController(t)
			registryMock := mocks.NewMockRegistry(ctrl)
			registryMock.EXPECT().Resolve(gomock.Any(), tt.specs, gomock.Any(), gomock.Any()).Return(plan.Empty()).Times(1)

			cr := resolver.NewCachedRegistry(cache, registryMock)
			_, err := cr.Resolve(context.Background(), resolver.NewContext(resolver.Request{Specs: tt.specs}))
			require.NoError(t, err)
		})
	}
}

func TestCachedRegistry_MalformedRangeIsFatal(t *testing.T) {
	env := environment(t)
	cache := depcache.New(env.ExtensionsDir)
	seedCache(t, env, cache, "Foo")

	ctrl := gomock.NewController(t)
	cr := resolver.NewCachedRegistry(cache, mocks.NewMockRegistry(ctrl))

	_, err := cr.Resolve(context.Background(), resolver.NewContext(resolver.Request{
		Specs: []model.ExtensionSpec{{PackageID: "Foo", VersionRange: "[1.0"}},
	}))
	require.ErrorIs(t, err, errors.ErrInvalidVersionRange)
	_, ok := errors.AsExtensionError(err)
	assert.True(t, ok)

	rc := resolver.NewContext(resolver.Request{Specs: []model.ExtensionSpec{{PackageID: "Foo"}}})
	rc.AdditionalDependencies = []model.DependencyRequest{{ID: "Json", VersionRange: "(,"}}
	_, err = cr.Resolve(context.Background(), rc)
	assert.ErrorIs(t, err, errors.ErrInvalidVersionRange)
}

func TestCachedRegistry_NothingRequested(t *testing.T) {
	ctrl := gomock.NewController(t)
	cr := resolver.NewCachedRegistry(nil, mocks.NewMockRegistry(ctrl))

	set, err := cr.Resolve(context.Background(), resolver.NewContext(resolver.Request{}))
	require.NoError(t, err)
	assert.True(t, set.Valid())
	assert.Empty(t, set.PackageIDs())
}

func TestComposite_InvalidChildBlocksInstall(t *testing.T) {
	env := environment(t)
	writeFiles(t, env.RootDir, map[string]string{"broken/readme.txt": "no project here"})

	ctrl := gomock.NewController(t)
	builder := localmocks.NewMockBuilder(ctrl)

	registrySet := planmocks.NewMockSet(ctrl)
	registrySet.EXPECT().Valid().Return(true).AnyTimes()
	registrySet.EXPECT().Err().Return(nil).AnyTimes()
	registrySet.EXPECT().PackageIDs().Return([]string{"Foo"}).AnyTimes()

	registryChild := mocks.NewMockResolver(ctrl)
	registryChild.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(registrySet, nil)

	composite := resolver.NewComposite(
		resolver.NewLocalBuild(local.New(local.Options{Builder: builder})),
		registryChild,
	)
	set, err := composite.Resolve(context.Background(), resolver.NewContext(resolver.Request{
		LocalSpecs:  []model.LocalExtensionSpec{{Folder: "broken"}},
		Environment: env,
	}))
	require.NoError(t, err)
	require.False(t, set.Valid())
	assert.ErrorIs(t, set.Err(), errors.ErrProjectNotFound)

	_, err = set.Install(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidPackageSet)
	assert.ErrorIs(t, err, errors.ErrProjectNotFound)
}

func TestComposite_FatalChildError(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockResolver(ctrl)
	second := mocks.NewMockResolver(ctrl)
	first.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(nil, errors.ErrBuildFailed)

	_, err := resolver.NewComposite(first, second).Resolve(context.Background(), resolver.NewContext(resolver.Request{}))
	assert.ErrorIs(t, err, errors.ErrBuildFailed)
}

func TestComposite_LocalDependenciesReachRegistry(t *testing.T) {
	env := environment(t)
	writeFiles(t, env.RootDir, map[string]string{
		"app/extension.yaml": "id: App\ndependencies:\n  - id: Json\n    range: '[1.0,)'\n  - id: Gen\n    private: true\n",
	})

	ctrl := gomock.NewController(t)
	builder := localmocks.NewMockBuilder(ctrl)
	builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p *local.Project) (*local.BuildResult, error) {
		writeFiles(t, p.OutputDir(), map[string]string{p.EntryPoint(): "module"})
		return &local.BuildResult{OutputDir: p.OutputDir()}, nil
	})

	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Json", Version: "1.2.0"})
	reg.Add(testutil.Package{ID: "Json", Version: "1.4.0"})
	cache := depcache.New(env.ExtensionsDir)
	rem := remote.New(remote.Options{
		Sources:    []registry.Source{registry.NewFileSource("main", reg.Dir, anyPlatform, nil)},
		InstallDir: env.ExtensionsDir,
		Cache:      cache,
	})

	composite := resolver.NewComposite(
		resolver.NewLocalBuild(local.New(local.Options{Builder: builder})),
		resolver.NewCachedRegistry(cache, rem),
	)
	rc := resolver.NewContext(resolver.Request{
		LocalSpecs:  []model.LocalExtensionSpec{{Folder: "app", Watch: model.WatchOutput}},
		Environment: env,
	})
	set, err := composite.Resolve(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, set.Valid(), "%v", set.Err())
	assert.Equal(t, []model.DependencyRequest{{ID: "Json", VersionRange: "[1.0,)"}}, rc.AdditionalDependencies)

	installed, err := set.Install(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"App", "Json"}, installed.IDs())
	assert.Equal(t, "1.2.0", installed.Find("Json").Version)
	assert.NoError(t, installed.CheckClosure(model.HostContext{}))

	cached, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Json"}, cached.IDs())
}

func TestNewDefault(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0", Tags: []string{"plugin"}, EntryPoint: "lib/foo.so"})

	env := environment(t)
	cfg := config.DefaultConfig()
	cfg.Extensions = []config.ExtensionConfig{{Package: "Foo"}}
	cfg.Sources = []*config.SourceConfig{{Name: "main", URL: reg.Dir}}
	cfg.Host.RootDir = env.RootDir
	cfg.Host.ExtensionsDir = env.ExtensionsDir
	cfg.Host.EntryPointTag = "plugin"
	cfg.Settings.CacheDir = t.TempDir()

	req, err := resolver.NewRequest(cfg)
	require.NoError(t, err)
	assert.Equal(t, env, req.Environment)

	chain, err := resolver.NewDefault(cfg, req.Environment, nil)
	require.NoError(t, err)

	set, err := chain.Resolve(context.Background(), resolver.NewContext(req))
	require.NoError(t, err)
	installed, err := set.Install(context.Background())
	require.NoError(t, err)

	foo := installed.Find("Foo")
	require.NotNil(t, foo)
	assert.Equal(t, "lib/foo.so", foo.EntryPoint)
	assert.FileExists(t, filepath.Join(env.ExtensionsDir, depcache.FileName))
}

func TestNewDefault_InvalidSource(t *testing.T) {
	env := environment(t)
	cfg := config.DefaultConfig()
	cfg.Sources = []*config.SourceConfig{{Name: "web", URL: "https://example.com/index.json"}}
	cfg.Settings.CacheDir = t.TempDir()

	_, err := resolver.NewDefault(cfg, env, nil)
	require.ErrorIs(t, err, errors.ErrDownloadFailed)
}

package remote_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/extly/pkg/depcache"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/platform"
	"github.com/glorpus-work/extly/pkg/plan"
	"github.com/glorpus-work/extly/pkg/registry"
	"github.com/glorpus-work/extly/pkg/remote"
	"github.com/glorpus-work/extly/test/testutil"
)

var anyPlatform = platform.Platform{OS: platform.Any, Arch: platform.Any}

func source(name string, reg *testutil.Registry) registry.Source {
	return registry.NewFileSource(name, reg.Dir, anyPlatform, nil)
}

func newResolver(t *testing.T, sources ...registry.Source) (*remote.Resolver, string) {
	dir := t.TempDir()
	return remote.New(remote.Options{Sources: sources, InstallDir: dir, Concurrency: 2}), dir
}

func install(t *testing.T, set plan.Set) *model.InstalledPackages {
	t.Helper()
	require.True(t, set.Valid(), "set invalid: %v", set.Err())
	installed, err := set.Install(context.Background())
	require.NoError(t, err)
	return installed
}

func versions(installed *model.InstalledPackages) map[string]string {
	out := make(map[string]string)
	for _, p := range installed.Packages {
		out[p.ID] = p.Version
	}
	return out
}

func TestResolve_PrefersLowestStableWithinRange(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.5.0"})
	reg.Add(testutil.Package{ID: "Foo", Version: "1.9.0-beta"})

	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{
		{PackageID: "Foo", VersionRange: "[1.0.0,2.0.0)"},
	}, nil, model.HostContext{})

	installed := install(t, set)
	assert.Equal(t, map[string]string{"Foo": "1.5.0"}, versions(installed))
	assert.True(t, installed.Find("foo").IsRoot())
}

func TestResolve_SkipsPrereleaseOnlySource(t *testing.T) {
	alpha := testutil.NewRegistry(t)
	alpha.Add(testutil.Package{ID: "Foo", Version: "2.0.0-alpha"})
	stable := testutil.NewRegistry(t)
	stable.Add(testutil.Package{ID: "Foo", Version: "1.0.0"})

	r, dir := newResolver(t, source("alpha", alpha), source("stable", stable))
	installed := install(t, r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Foo"}}, nil, model.HostContext{}))

	assert.Equal(t, map[string]string{"Foo": "1.0.0"}, versions(installed))
	assert.Equal(t, filepath.Join(dir, "foo", "1.0.0"), installed.Packages[0].InstallFolder)
}

func TestResolve_OpenRangePicksNewestAcrossSources(t *testing.T) {
	a := testutil.NewRegistry(t)
	a.Add(testutil.Package{ID: "Foo", Version: "1.0.0"})
	b := testutil.NewRegistry(t)
	b.Add(testutil.Package{ID: "Foo", Version: "1.2.0"})
	b.Add(testutil.Package{ID: "Foo", Version: "1.3.0-rc.1"})

	r, _ := newResolver(t, source("a", a), source("b", b))
	installed := install(t, r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Foo"}}, nil, model.HostContext{}))
	assert.Equal(t, "1.2.0", versions(installed)["Foo"])

	installed = install(t, r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Foo", AllowPrerelease: true}}, nil, model.HostContext{}))
	assert.Equal(t, "1.3.0-rc.1", versions(installed)["Foo"])
}

func TestResolve_TransitiveDependenciesUseMinimumVersion(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "App", Version: "1.0.0", Dependencies: testutil.Deps("Util [1.0,)")})
	reg.Add(testutil.Package{ID: "Util", Version: "1.0.0", Dependencies: testutil.Deps("Core [1.0,2.0)")})
	reg.Add(testutil.Package{ID: "Util", Version: "1.5.0"})
	reg.Add(testutil.Package{ID: "Core", Version: "1.2.0"})
	reg.Add(testutil.Package{ID: "Core", Version: "2.0.0"})

	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "App"}}, nil, model.HostContext{})
	assert.ElementsMatch(t, []string{"App", "Util", "Core"}, set.PackageIDs())

	installed := install(t, set)
	assert.Equal(t, map[string]string{"App": "1.0.0", "Util": "1.0.0", "Core": "1.2.0"}, versions(installed))
	assert.Equal(t, model.KindDependency, installed.Find("Core").Kind)
	assert.Equal(t, []string{"Util"}, installed.Find("App").Dependencies)
	assert.NoError(t, installed.CheckClosure(model.HostContext{}))
}

func TestResolve_HostSuppliedDependenciesExcluded(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "App", Version: "1.0.0", Dependencies: testutil.Deps("Host.Core [1.0,)", "Util")})
	reg.Add(testutil.Package{ID: "Util", Version: "1.0.0", Dependencies: testutil.Deps("host.core")})

	host := model.HostContext{SuppliedLibraries: map[string]string{"Host.Core": "3.0.0"}}
	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "App"}}, nil, host)

	installed := install(t, set)
	assert.ElementsMatch(t, []string{"App", "Util"}, installed.IDs())
	assert.Nil(t, installed.Find("Host.Core"))
	assert.Empty(t, installed.Find("Util").Dependencies)
	assert.NoError(t, installed.CheckClosure(host))
}

func TestResolve_BacktracksToSatisfyAllRanges(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "App", Version: "1.0.0", Dependencies: testutil.Deps("Core [1.0,)", "Plugin [1.0,)")})
	reg.Add(testutil.Package{ID: "Plugin", Version: "1.0.0", Dependencies: testutil.Deps("Core [2.0,)")})
	reg.Add(testutil.Package{ID: "Core", Version: "1.0.0"})
	reg.Add(testutil.Package{ID: "Core", Version: "2.0.0"})
	reg.Add(testutil.Package{ID: "Core", Version: "3.0.0"})

	r, _ := newResolver(t, source("main", reg))
	installed := install(t, r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "App"}}, nil, model.HostContext{}))
	assert.Equal(t, map[string]string{"App": "1.0.0", "Plugin": "1.0.0", "Core": "2.0.0"}, versions(installed))
}

func TestResolve_RootFollowsDependentRequirement(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "App", Version: "1.0.0", Dependencies: testutil.Deps("Lib [2.0,)")})
	reg.Add(testutil.Package{ID: "Lib", Version: "1.0.0"})
	reg.Add(testutil.Package{ID: "Lib", Version: "2.0.0"})

	r, _ := newResolver(t, source("main", reg))
	installed := install(t, r.Resolve(context.Background(), []model.ExtensionSpec{
		{PackageID: "Lib", VersionRange: "1.0"},
		{PackageID: "App"},
	}, nil, model.HostContext{}))
	assert.Equal(t, "2.0.0", versions(installed)["Lib"])
	assert.Len(t, installed.Roots(), 2)
}

func TestResolve_Conflict(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "A", Version: "1.0.0", Dependencies: testutil.Deps("Core [1.0,2.0)")})
	reg.Add(testutil.Package{ID: "B", Version: "1.0.0", Dependencies: testutil.Deps("Core [2.0,)")})
	reg.Add(testutil.Package{ID: "Core", Version: "1.0.0"})
	reg.Add(testutil.Package{ID: "Core", Version: "2.0.0"})

	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "A"}, {PackageID: "B"}}, nil, model.HostContext{})
	require.False(t, set.Valid())
	assert.ErrorIs(t, set.Err(), errors.ErrVersionConflict)

	_, err := set.Install(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidPackageSet)
}

func TestResolve_Cycle(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "A", Version: "1.0.0", Dependencies: testutil.Deps("B")})
	reg.Add(testutil.Package{ID: "B", Version: "1.0.0", Dependencies: testutil.Deps("A")})

	r, _ := newResolver(t, source("main", reg))
	installed := install(t, r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "A"}}, nil, model.HostContext{}))
	assert.ElementsMatch(t, []string{"A", "B"}, installed.IDs())
}

func TestResolve_NotFound(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0"})

	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Missing"}}, nil, model.HostContext{})
	require.False(t, set.Valid())
	assert.ErrorIs(t, set.Err(), errors.ErrPackageNotFound)
	ee, ok := errors.AsExtensionError(set.Err())
	require.True(t, ok)
	assert.Equal(t, "Missing", ee.Package)
}

func TestResolve_MissingDependency(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0", Dependencies: testutil.Deps("Ghost [1.0,)")})

	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Foo"}}, nil, model.HostContext{})
	require.False(t, set.Valid())
	assert.ErrorIs(t, set.Err(), errors.ErrPackageNotFound)
	assert.Contains(t, set.Err().Error(), "Ghost")
}

func TestResolve_NoSources(t *testing.T) {
	r, _ := newResolver(t)
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Foo"}}, nil, model.HostContext{})
	assert.ErrorIs(t, set.Err(), errors.ErrNoSources)

	empty := r.Resolve(context.Background(), nil, nil, model.HostContext{})
	assert.True(t, empty.Valid())
	assert.Empty(t, empty.PackageIDs())
}

func TestResolve_Cancelled(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(ctx, []model.ExtensionSpec{{PackageID: "Foo"}}, nil, model.HostContext{})
	require.False(t, set.Valid())
	assert.ErrorIs(t, set.Err(), context.Canceled)
}

func TestResolve_AdditionalDependencies(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Json", Version: "1.0.0"})
	reg.Add(testutil.Package{ID: "Json", Version: "1.4.0"})

	r, _ := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), nil, []model.DependencyRequest{{ID: "Json", VersionRange: "[1.1,)"}}, model.HostContext{})
	installed := install(t, set)
	require.Len(t, installed.Packages, 1)
	assert.Equal(t, "1.4.0", installed.Packages[0].Version)
	assert.Equal(t, model.KindDependency, installed.Packages[0].Kind)
}

func TestInstall_LibraryFilesAndEntryPoint(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{
		ID: "Tagged", Version: "1.0.0", Tags: []string{"plugin"}, EntryPoint: "lib/tagged.so",
		Files: map[string]string{"lib/tagged.so": "x", "lib/sub/helper.so": "y", "README.md": "docs"},
	})
	reg.Add(testutil.Package{
		ID: "Untagged", Version: "1.0.0", EntryPoint: "untagged.so",
		Files: map[string]string{"untagged.so": "x", "extra.dat": "y"},
	})

	host := model.HostContext{EntryPointTag: "plugin"}
	r, _ := newResolver(t, source("main", reg))
	installed := install(t, r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Tagged"}, {PackageID: "Untagged"}}, nil, host))

	tagged := installed.Find("Tagged")
	assert.ElementsMatch(t, []string{"lib/tagged.so", "lib/sub/helper.so"}, tagged.LibraryFiles)
	assert.Equal(t, "lib/tagged.so", tagged.EntryPoint)
	assert.FileExists(t, tagged.EntryPointPath())

	untagged := installed.Find("Untagged")
	assert.ElementsMatch(t, []string{"untagged.so", "extra.dat"}, untagged.LibraryFiles)
	assert.Empty(t, untagged.EntryPoint)
}

func TestInstall_RunsPostInstallHook(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{
		ID: "Hooked", Version: "1.0.0",
		Files: map[string]string{
			"lib/hooked.so": "x",
			"hooks/post-install.tengo": `os := import("os")
f := os.create(installPath + "/configured.txt")
f.write_string(packageId)
f.close()`,
		},
	})

	r, _ := newResolver(t, source("main", reg))
	installed := install(t, r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Hooked"}}, nil, model.HostContext{}))

	pkg := installed.Find("Hooked")
	data, err := os.ReadFile(filepath.Join(pkg.InstallFolder, "configured.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hooked", string(data))
	assert.Equal(t, []string{"lib/hooked.so"}, pkg.LibraryFiles)
}

func TestInstall_FailingHookLeavesPackageIncomplete(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{
		ID: "Broken", Version: "1.0.0",
		Files: map[string]string{"lib/b.so": "x", "hooks/post-install.tengo": `err := "cannot configure"`},
	})

	r, dir := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Broken"}}, nil, model.HostContext{})
	require.True(t, set.Valid())
	_, err := set.Install(context.Background())
	require.ErrorIs(t, err, errors.ErrHookScript)
	assert.NoFileExists(t, filepath.Join(dir, "broken", "1.0.0", remote.CompleteMarker))
}

func TestInstall_ReusesCompleteFolders(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0"})

	r, _ := newResolver(t, source("main", reg))
	specs := []model.ExtensionSpec{{PackageID: "Foo"}}
	first := install(t, r.Resolve(context.Background(), specs, nil, model.HostContext{}))

	require.NoError(t, os.RemoveAll(filepath.Join(reg.Dir, "archives")))

	second := install(t, r.Resolve(context.Background(), specs, nil, model.HostContext{}))
	assert.Equal(t, first.Packages[0].InstallFolder, second.Packages[0].InstallFolder)
	assert.Equal(t, first.Packages[0].LibraryFiles, second.Packages[0].LibraryFiles)
}

func TestInstall_SavesDependencyCache(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0", Dependencies: testutil.Deps("Bar")})
	reg.Add(testutil.Package{ID: "Bar", Version: "1.0.0"})

	dir := t.TempDir()
	cache := depcache.New(dir)
	r := remote.New(remote.Options{Sources: []registry.Source{source("main", reg)}, InstallDir: dir, Cache: cache})

	specs := []model.ExtensionSpec{{PackageID: "Foo"}}
	install(t, r.Resolve(context.Background(), specs, nil, model.HostContext{}))

	cached, err := cache.Load()
	require.NoError(t, err)
	require.NotNil(t, cached)
	ok, err := depcache.Validate(specs, nil, cached)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, depcache.VerifyFilesPresent(cached))
}

func TestInstall_Cancelled(t *testing.T) {
	reg := testutil.NewRegistry(t)
	reg.Add(testutil.Package{ID: "Foo", Version: "1.0.0"})

	r, dir := newResolver(t, source("main", reg))
	set := r.Resolve(context.Background(), []model.ExtensionSpec{{PackageID: "Foo"}}, nil, model.HostContext{})
	require.True(t, set.Valid())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := set.Install(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, filepath.Join(dir, "foo", "1.0.0"))
}

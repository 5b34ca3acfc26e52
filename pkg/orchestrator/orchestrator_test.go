package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/orchestrator"
	"github.com/glorpus-work/extly/pkg/plan"
	planmocks "github.com/glorpus-work/extly/pkg/plan/mocks"
	"github.com/glorpus-work/extly/pkg/registry"
	regmocks "github.com/glorpus-work/extly/pkg/registry/mocks"
	"github.com/glorpus-work/extly/pkg/resolver"
	resmocks "github.com/glorpus-work/extly/pkg/resolver/mocks"
)

type recorder struct {
	events []orchestrator.Event
}

func (r *recorder) hooks() orchestrator.Hooks {
	return orchestrator.Hooks{OnEvent: func(e orchestrator.Event) { r.events = append(r.events, e) }}
}

func (r *recorder) phases() []string {
	var out []string
	for _, e := range r.events {
		if len(out) == 0 || out[len(out)-1] != e.Phase {
			out = append(out, e.Phase)
		}
	}
	return out
}

func request() resolver.Request {
	return resolver.Request{Specs: []model.ExtensionSpec{{PackageID: "Foo"}}}
}

func TestInstall_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	installed := &model.InstalledPackages{Packages: []*model.PackageMetadata{
		{ID: "Foo", Version: "1.0.0", Kind: model.KindRoot, Dependencies: []string{"Bar"}},
		{ID: "Bar", Version: "2.0.0", Kind: model.KindDependency},
	}}

	set := planmocks.NewMockSet(ctrl)
	set.EXPECT().Valid().Return(true)
	set.EXPECT().PackageIDs().Return([]string{"Bar", "Foo"}).AnyTimes()
	set.EXPECT().Install(ctx).Return(installed, nil)

	res := resmocks.NewMockResolver(ctrl)
	res.EXPECT().Resolve(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, rc *resolver.Context) (plan.Set, error) {
		assert.Equal(t, "Foo", rc.Specs[0].PackageID)
		assert.Empty(t, rc.AdditionalDependencies)
		return set, nil
	})

	rec := &recorder{}
	got, err := orchestrator.New(res, rec.hooks()).Install(ctx, request(), orchestrator.InstallOptions{})
	require.NoError(t, err)
	assert.Same(t, installed, got)
	assert.Equal(t, []string{"planning", "installing", "done"}, rec.phases())
}

func TestInstall_DryRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	set := planmocks.NewMockSet(ctrl)
	set.EXPECT().Valid().Return(true)
	set.EXPECT().PackageIDs().Return([]string{"Foo"})

	res := resmocks.NewMockResolver(ctrl)
	res.EXPECT().Resolve(ctx, gomock.Any()).Return(set, nil)

	rec := &recorder{}
	got, err := orchestrator.New(res, rec.hooks()).Install(ctx, request(), orchestrator.InstallOptions{DryRun: true})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{"planning", "done"}, rec.phases())
	assert.Equal(t, "Foo", rec.events[1].ID)
}

func TestInstall_InvalidSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	set := planmocks.NewMockSet(ctrl)
	set.EXPECT().Valid().Return(false)
	set.EXPECT().Err().Return(errors.ErrPackageNotFoundWithID("Foo"))

	res := resmocks.NewMockResolver(ctrl)
	res.EXPECT().Resolve(ctx, gomock.Any()).Return(set, nil)

	rec := &recorder{}
	got, err := orchestrator.New(res, rec.hooks()).Install(ctx, request(), orchestrator.InstallOptions{})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, errors.ErrInvalidPackageSet)
	assert.ErrorIs(t, err, errors.ErrPackageNotFound)
	ee, ok := errors.AsExtensionError(err)
	require.True(t, ok)
	assert.Equal(t, "resolve", ee.Op)
	assert.Equal(t, []string{"planning", "error"}, rec.phases())
}

func TestInstall_FatalResolution(t *testing.T) {
	ctrl := gomock.NewController(t)
	res := resmocks.NewMockResolver(ctrl)
	res.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(nil, errors.ErrInvalidVersionRangeWithValue("[1.0"))

	_, err := orchestrator.New(res, orchestrator.Hooks{}).Install(context.Background(), request(), orchestrator.InstallOptions{})
	assert.ErrorIs(t, err, errors.ErrInvalidVersionRange)
	_, ok := errors.AsExtensionError(err)
	assert.True(t, ok)
}

func TestInstall_FailureReturnsNoPackages(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	set := planmocks.NewMockSet(ctrl)
	set.EXPECT().Valid().Return(true)
	set.EXPECT().PackageIDs().Return([]string{"Foo"}).AnyTimes()
	set.EXPECT().Install(ctx).Return(nil, fmt.Errorf("disk full"))

	res := resmocks.NewMockResolver(ctrl)
	res.EXPECT().Resolve(ctx, gomock.Any()).Return(set, nil)

	got, err := orchestrator.New(res, orchestrator.Hooks{}).Install(ctx, request(), orchestrator.InstallOptions{})
	assert.Nil(t, got)
	ee, ok := errors.AsExtensionError(err)
	require.True(t, ok)
	assert.Equal(t, "install", ee.Op)
}

func TestInstall_DanglingDependency(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	installed := &model.InstalledPackages{Packages: []*model.PackageMetadata{
		{ID: "Foo", Version: "1.0.0", Kind: model.KindRoot, Dependencies: []string{"Missing", "Host.Lib"}},
	}}

	set := planmocks.NewMockSet(ctrl)
	set.EXPECT().Valid().Return(true)
	set.EXPECT().PackageIDs().Return([]string{"Foo"}).AnyTimes()
	set.EXPECT().Install(ctx).Return(installed, nil)

	res := resmocks.NewMockResolver(ctrl)
	res.EXPECT().Resolve(ctx, gomock.Any()).Return(set, nil)

	req := request()
	req.Host = model.HostContext{SuppliedLibraries: map[string]string{"Host.Lib": "1.0.0"}}
	got, err := orchestrator.New(res, orchestrator.Hooks{}).Install(ctx, req, orchestrator.InstallOptions{})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, errors.ErrDanglingDependency)
}

func TestPlan_NoResolver(t *testing.T) {
	_, err := (&orchestrator.Orchestrator{}).Plan(context.Background(), request())
	assert.Error(t, err)
}

type refreshingSource struct {
	*regmocks.MockSource
	refreshed int
	err       error
}

func (s *refreshingSource) Refresh(context.Context) error {
	s.refreshed++
	return s.err
}

func TestSync(t *testing.T) {
	ctrl := gomock.NewController(t)

	ok := &refreshingSource{MockSource: regmocks.NewMockSource(ctrl)}
	ok.EXPECT().Name().Return("good").AnyTimes()
	broken := &refreshingSource{MockSource: regmocks.NewMockSource(ctrl), err: errors.ErrSourceUnreachable}
	broken.EXPECT().Name().Return("broken").AnyTimes()
	static := regmocks.NewMockSource(ctrl)

	rec := &recorder{}
	err := orchestrator.New(nil, rec.hooks()).Sync(context.Background(), []registry.Source{broken, static, ok})
	assert.ErrorIs(t, err, errors.ErrSourceUnreachable)
	assert.Equal(t, 1, ok.refreshed)
	assert.Equal(t, 1, broken.refreshed)
	assert.Equal(t, []string{"syncing", "error", "syncing"}, rec.phases())
}

func TestSync_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &refreshingSource{MockSource: regmocks.NewMockSource(gomock.NewController(t))}
	err := orchestrator.New(nil, orchestrator.Hooks{}).Sync(ctx, []registry.Source{src})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.refreshed)
}

func mkdirs(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755))
	}
}

func TestCleanup(t *testing.T) {
	ext := t.TempDir()
	mkdirs(t, ext, "foo/1.0.0", "foo/2.0.0", "bar/1.0.0", "local/app", "local/old", ".downloads/x")
	require.NoError(t, os.WriteFile(filepath.Join(ext, "extensions.deps.json"), []byte("{}"), 0o644))

	installed := &model.InstalledPackages{Packages: []*model.PackageMetadata{
		{ID: "Foo", InstallFolder: filepath.Join(ext, "foo", "2.0.0")},
		{ID: "App", InstallFolder: filepath.Join(ext, "local", "app")},
	}}
	o := orchestrator.New(nil, orchestrator.Hooks{})

	removable, err := o.Cleanup(context.Background(), ext, installed, orchestrator.CleanupOptions{DryRun: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(ext, "foo", "1.0.0"),
		filepath.Join(ext, "bar", "1.0.0"),
		filepath.Join(ext, "local", "old"),
	}, removable)
	assert.DirExists(t, filepath.Join(ext, "foo", "1.0.0"))

	removed, err := o.Cleanup(context.Background(), ext, installed, orchestrator.CleanupOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, removable, removed)
	assert.NoDirExists(t, filepath.Join(ext, "foo", "1.0.0"))
	assert.NoDirExists(t, filepath.Join(ext, "bar"))
	assert.DirExists(t, filepath.Join(ext, "foo", "2.0.0"))
	assert.DirExists(t, filepath.Join(ext, "local", "app"))
	assert.DirExists(t, filepath.Join(ext, ".downloads", "x"))
	assert.FileExists(t, filepath.Join(ext, "extensions.deps.json"))
}

func TestCleanup_MissingDirectory(t *testing.T) {
	removed, err := orchestrator.New(nil, orchestrator.Hooks{}).Cleanup(context.Background(), filepath.Join(t.TempDir(), "none"), nil, orchestrator.CleanupOptions{})
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestCleanup_Preserve(t *testing.T) {
	ext := t.TempDir()
	mkdirs(t, ext, "foo/1.0.0", "local/app")

	removed, err := orchestrator.New(nil, orchestrator.Hooks{}).Cleanup(context.Background(), ext, &model.InstalledPackages{},
		orchestrator.CleanupOptions{Preserve: []string{"local"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(ext, "foo", "1.0.0")}, removed)
	assert.DirExists(t, filepath.Join(ext, "local", "app"))
}

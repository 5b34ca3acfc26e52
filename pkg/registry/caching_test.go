package registry_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/extly/pkg/registry"
	"github.com/glorpus-work/extly/pkg/registry/mocks"
)

func TestCachingSource_MemoizesAnswers(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	inner := mocks.NewMockSource(ctrl)

	vs := []*version.Version{version.Must(version.NewVersion("1.0.0"))}
	inner.EXPECT().Versions(ctx, "Acme.Core").Return(vs, nil).Times(1)
	inner.EXPECT().Package(ctx, identity("Acme.Core", "1.0.0")).Return(nil, nil).Times(1)
	inner.EXPECT().Name().Return("inner")

	src, err := registry.NewCachingSource(inner, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := src.Versions(ctx, "Acme.Core")
		require.NoError(t, err)
		assert.Equal(t, vs, got)

		info, err := src.Package(ctx, identity("Acme.Core", "1.0.0"))
		require.NoError(t, err)
		assert.Nil(t, info)
	}
	assert.Equal(t, "inner", src.Name())
}

func TestCachingSource_DoesNotCacheErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	inner := mocks.NewMockSource(ctrl)

	gomock.InOrder(
		inner.EXPECT().Versions(ctx, "A").Return(nil, fmt.Errorf("boom")),
		inner.EXPECT().Versions(ctx, "A").Return(nil, nil),
	)

	src, err := registry.NewCachingSource(inner, 8)
	require.NoError(t, err)

	_, err = src.Versions(ctx, "A")
	require.Error(t, err)
	_, err = src.Versions(ctx, "A")
	require.NoError(t, err)
	_, err = src.Versions(ctx, "a")
	require.NoError(t, err)
}

func TestCachingSource_Purge(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	inner := mocks.NewMockSource(ctrl)
	inner.EXPECT().Versions(ctx, "A").Return(nil, nil).Times(2)

	src, err := registry.NewCachingSource(inner, 8)
	require.NoError(t, err)
	_, _ = src.Versions(ctx, "A")
	src.Purge()
	_, _ = src.Versions(ctx, "A")
}

func TestNewCachingSource_InvalidSize(t *testing.T) {
	_, err := registry.NewCachingSource(mocks.NewMockSource(gomock.NewController(t)), 0)
	assert.Error(t, err)
}

func TestCachingSource_Refresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	inner := mocks.NewMockSource(ctrl)
	inner.EXPECT().Versions(ctx, "A").Return(nil, nil).Times(2)

	src, err := registry.NewCachingSource(inner, 8)
	require.NoError(t, err)
	_, _ = src.Versions(ctx, "A")
	// The mock source cannot refresh, so only the memoized answers go.
	require.NoError(t, src.Refresh(ctx))
	_, _ = src.Versions(ctx, "A")
}

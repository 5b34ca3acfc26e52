package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBestMatch(t *testing.T) {
	tests := []struct {
		name       string
		versions   []string
		rng        string
		prerelease bool
		want       string
	}{
		{
			name:     "lower bound picks lowest stable",
			versions: []string{"1.5.0", "1.9.0-beta"},
			rng:      "[1.0.0,2.0.0)",
			want:     "1.5.0",
		},
		{
			name:     "open range picks highest",
			versions: []string{"1.0.0", "3.0.0", "2.0.0"},
			want:     "3.0.0",
		},
		{
			name:     "upper bound only picks highest within",
			versions: []string{"1.0.0", "2.0.0", "3.0.0"},
			rng:      "(,2.0.0]",
			want:     "2.0.0",
		},
		{
			name:     "prerelease skipped when forbidden",
			versions: []string{"2.0.0-alpha"},
		},
		{
			name:       "prerelease taken when allowed",
			versions:   []string{"1.0.0", "2.0.0-alpha"},
			prerelease: true,
			want:       "2.0.0-alpha",
		},
		{
			name:     "prerelease bound still needs permission",
			versions: []string{"1.0.0-rc.1", "1.0.0-rc.2"},
			rng:      "[1.0.0-rc.1,)",
		},
		{
			name:     "prerelease bound picks stable release",
			versions: []string{"1.0.0-rc.1", "1.0.0"},
			rng:      "[1.0.0-rc.1,2.0.0)",
			want:     "1.0.0",
		},
		{
			name:       "prerelease bound with permission",
			versions:   []string{"1.0.0-rc.1", "1.0.0-rc.2"},
			rng:        "[1.0.0-rc.1,)",
			prerelease: true,
			want:       "1.0.0-rc.1",
		},
		{
			name:     "nothing satisfies",
			versions: []string{"0.1.0"},
			rng:      "[1.0,)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindBestMatch(vs(tt.versions...), MustParseRange(tt.rng), tt.prerelease)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Original())
		})
	}
}

func TestAllowed(t *testing.T) {
	rng := MustParseRange("[1.0.0-beta,2.0.0)")
	assert.True(t, rng.IncludesPrerelease())
	assert.False(t, Allowed(v("1.0.0-beta"), rng, false))
	assert.True(t, Allowed(v("1.0.0-beta"), rng, true))
	assert.True(t, Allowed(v("1.2.0"), rng, false))
	assert.False(t, Allowed(v("2.0.0"), rng, true))
}

func TestBetter(t *testing.T) {
	lower := MustParseRange("[1.0,)")
	open := Any()

	assert.True(t, Better(lower, v("1.0.0"), v("1.5.0")))
	assert.False(t, Better(lower, v("2.0.0"), v("1.5.0")))
	assert.True(t, Better(open, v("2.0.0"), v("1.5.0")))
	assert.True(t, Better(open, v("0.1.0"), nil))
	assert.False(t, Better(open, nil, v("0.1.0")))
}

func TestMinSatisfying(t *testing.T) {
	r := MustParseRange("[1.0,2.0)")
	assert.Equal(t, "1.2.0", MinSatisfying(vs("1.9.0", "1.2.0", "1.1.0-beta", "2.0.0"), r).Original())
	assert.Equal(t, "1.1.0-beta", MinSatisfying(vs("1.1.0-beta", "2.0.0"), r).Original())
	assert.Nil(t, MinSatisfying(vs("2.0.0"), r))
}

func TestSortedAndParseVersions(t *testing.T) {
	parsed := ParseVersions([]string{"2.0.0", "bogus", "1.0.0"})
	require.Len(t, parsed, 2)
	sorted := Sorted(parsed)
	assert.Equal(t, "1.0.0", sorted[0].Original())
	assert.Equal(t, "2.0.0", parsed[0].Original())
}

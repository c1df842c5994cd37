package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dperrone/flatfs"
)

func TestDefaultProfileMatchesEngineDefaults(t *testing.T) {
	profile, err := Get("default")
	require.NoError(t, err)
	assert.Equal(t, flatfs.DefaultGeometry(), profile.Geometry())
}

func TestEveryProfileIsFormattable(t *testing.T) {
	slugs := Slugs()
	require.NotEmpty(t, slugs)
	for _, slug := range slugs {
		profile, err := Get(slug)
		require.NoError(t, err)
		assert.NoErrorf(t, profile.Geometry().Validate(),
			"profile %q can't be formatted", slug)
	}
}

func TestGetUnknownSlug(t *testing.T) {
	_, err := Get("betamax")
	assert.Error(t, err)
}

func TestTotalSizeBytes(t *testing.T) {
	profile, err := Get("default")
	require.NoError(t, err)
	assert.EqualValues(t, 10*1024*1024, profile.TotalSizeBytes())
}

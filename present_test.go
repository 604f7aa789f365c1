package hvers

import (
	"encoding/json"
	"testing"

	"github.com/blang/semver"
	"github.com/stretchr/testify/require"
)

func TestPresentValue(t *testing.T) {
	for _, v := range []string{"0.0.0", "1.4.2", "1.4.2-alpha.7", "1.0.0-rc.1.2+sha.0a1b2c3d", "2.0.0+dirty"} {
		t.Run(v, func(t *testing.T) {
			version := semver.MustParse(v)
			p, err := Present(version, 3, PresentationValue)
			require.NoError(t, err)
			require.Equal(t, v, p.Value)
			require.Nil(t, p.Record)

			parsed, err := semver.Parse(p.Value)
			require.NoError(t, err)
			require.True(t, parsed.Equals(version))
			require.Equal(t, version.Build, parsed.Build)
		})
	}
}

func TestPresentComplex(t *testing.T) {
	version := semver.MustParse("1.4.2-alpha.7+0a1b2c3d")
	p, err := Present(version, 7, PresentationComplex)
	require.NoError(t, err)
	require.Equal(t, &VersionRecord{
		Major:         1,
		Minor:         4,
		Patch:         2,
		PreRelease:    []string{"alpha", "7"},
		BuildMetadata: []string{"0a1b2c3d"},
		Height:        7,
	}, p.Record)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{"major":1,"minor":4,"patch":2,"preRelease":["alpha","7"],"buildMetadata":["0a1b2c3d"],"height":7}`, string(data))

	t.Run("Empty components are empty lists", func(t *testing.T) {
		p, err := Present(semver.MustParse("3.0.0"), 0, PresentationComplex)
		require.NoError(t, err)

		data, err := json.Marshal(p)
		require.NoError(t, err)
		require.JSONEq(t, `{"major":3,"minor":0,"patch":0,"preRelease":[],"buildMetadata":[],"height":0}`, string(data))
	})

	t.Run("Mutating the record leaves the version alone", func(t *testing.T) {
		p.Record.BuildMetadata[0] = "changed"
		require.Equal(t, "1.4.2-alpha.7+0a1b2c3d", version.String())
	})
}

func TestPresentValueJSON(t *testing.T) {
	p, err := Present(semver.MustParse("1.2.3"), 0, PresentationValue)
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, `"1.2.3"`, string(data))
	require.Equal(t, "1.2.3", p.String())
}

func TestPresentationUnmarshalJSON(t *testing.T) {
	var p Presentation
	require.NoError(t, json.Unmarshal([]byte(`"1.2.3-rc.1"`), &p))
	require.Equal(t, Presentation{Kind: PresentationValue, Value: "1.2.3-rc.1"}, p)

	require.NoError(t, json.Unmarshal([]byte(`{"major":1,"minor":2,"patch":3,"preRelease":["rc","1"],"buildMetadata":[],"height":4}`), &p))
	require.Equal(t, PresentationComplex, p.Kind)
	require.Equal(t, []string{"rc", "1"}, p.Record.PreRelease)
	require.Equal(t, 4, p.Record.Height)

	require.Error(t, json.Unmarshal([]byte(`[1]`), &p))

	var fromNull Presentation
	require.ErrorIs(t, json.Unmarshal([]byte(`null`), &fromNull), ErrUnsupportedPresentationKind)
	require.Equal(t, Presentation{}, fromNull)
}

func TestPresentUnsupportedKind(t *testing.T) {
	_, err := Present(semver.MustParse("1.2.3"), 0, PresentationKind(7))
	require.ErrorIs(t, err, ErrUnsupportedPresentationKind)
}

func TestParsePresentationKind(t *testing.T) {
	kind, err := ParsePresentationKind("complex")
	require.NoError(t, err)
	require.Equal(t, PresentationComplex, kind)

	kind, err = ParsePresentationKind("Value")
	require.NoError(t, err)
	require.Equal(t, PresentationValue, kind)

	_, err = ParsePresentationKind("table")
	require.ErrorIs(t, err, ErrUnsupportedPresentationKind)

	var k PresentationKind
	require.NoError(t, k.UnmarshalText([]byte("complex")))
	require.Equal(t, PresentationComplex, k)
}

func TestFallbackVersion(t *testing.T) {
	require.Equal(t, "0.0.0-dev", FallbackVersion().String())
}

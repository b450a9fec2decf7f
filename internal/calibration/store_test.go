package calibration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "coefs")
	require.NoError(t, os.WriteFile(existing, []byte("validity_limit: 1\n"), 0644))

	for _, tc := range []struct {
		in   string
		want Ref
	}{
		{"", Ref{}},
		{"Nechad_2016", Named("Nechad_2016")},
		{"my/calib.yaml", File("my/calib.yaml")},
		{"calib.YML", File("calib.YML")},
		{existing, File(existing)},
	} {
		assert.Equal(t, tc.want, ParseRef(tc.in), tc.in)
	}
	assert.True(t, ParseRef("").IsZero())
	assert.Equal(t, "Han_2016", Named("Han_2016").String())
}

func TestStore_BuiltinCalibrations(t *testing.T) {
	s := NewStore()
	for algo, name := range map[string]string{
		"spm-nechad":      "Nechad_2016",
		"spm-han":         "Han_2016",
		"spm-get":         "GET_2018",
		"turbi-dogliotti": "Dogliotti_2015",
		"chla-gons":       "Gons_2004",
		"chla-gitelson":   "Gitelson_2008",
		"chla-2bands":     "Moses_2012",
		"chla-3bands":     "Moses_2009",
		"chla-gurlin":     "Gurlin_2011",
		"chla-lins":       "Lins_2017",
		"chla-ndcipoly":   "Mishra_2012",
		"chla-oc":         "OReilly_2019_OC3",
		"acdom-brezonik":  "Brezonik_2015",
	} {
		set, err := s.Load(algo, Named(name))
		require.NoError(t, err, algo)
		assert.Equal(t, name, set.Name)
		assert.Positive(t, set.ValidityLimit, algo)
		assert.NotEmpty(t, set.Satellites(), algo)
	}
}

func TestStore_LoadIsIdempotent(t *testing.T) {
	s := NewStore()

	first, err := s.Load("spm-nechad", Named("Nechad_2016"))
	require.NoError(t, err)
	second, err := s.Load("spm-nechad", Named("Nechad_2016"))
	require.NoError(t, err)
	assert.Same(t, first, second)

	a, err := first.Coefficients("S2_ESA_L2A", "B4")
	require.NoError(t, err)
	b, err := second.Coefficients("S2_ESA_L2A", "B4")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, Coefficients{"a": 355.85, "c": 0.1728}, a)

	// A fresh store parses the file again and finds the same values.
	other, err := NewStore().Load("spm-nechad", Named("Nechad_2016"))
	require.NoError(t, err)
	c, err := other.Coefficients("S2_ESA_L2A", "B4")
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestStore_Errors(t *testing.T) {
	s := NewStore()

	_, err := s.Load("spm-nechad", Ref{})
	assert.ErrorIs(t, err, config.ErrInvalidInput)

	_, err = s.Load("spm-nechad", Named("Nechad_1999"))
	assert.ErrorIs(t, err, config.ErrInvalidInput)

	_, err = s.Load("ndvi", Named("anything"))
	assert.ErrorIs(t, err, config.ErrInvalidInput)

	_, err = s.Load("spm-nechad", File(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, config.ErrInvalidInput)
}

func TestStore_Names(t *testing.T) {
	names, err := NewStore().Names("spm-nechad")
	require.NoError(t, err)
	assert.Equal(t, []string{"Nechad_2010", "Nechad_2016"}, names)
}

func TestStore_Summaries(t *testing.T) {
	summaries, err := NewStore().Summaries("spm-nechad")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	latest := summaries[1]
	assert.Equal(t, "Nechad_2016", latest.Name)
	assert.Equal(t, 1000.0, latest.ValidityLimit)
	assert.Contains(t, latest.Satellites, "L8L2")
	assert.Equal(t, []string{"B4", "B5", "B8", "B8A"}, latest.Bands["S2_GRS"])

	summaries, err = NewStore().Summaries("chla-lins")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Empty(t, summaries[0].Bands, "coefficients are not split per band")

	_, err = NewStore().Summaries("ndvi")
	assert.ErrorIs(t, err, config.ErrInvalidInput)
}

func TestStore_CustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
validity_limit: 800
S2_GRS:
  B4: {a: 400, c: 0.18}
`), 0644))

	s := NewStore()
	set, err := s.Load("spm-nechad", ParseRef(path))
	require.NoError(t, err)
	assert.Equal(t, CustomName, set.Name)
	assert.Equal(t, 800.0, set.ValidityLimit)

	again, err := s.Load("spm-nechad", File(path))
	require.NoError(t, err)
	assert.Same(t, set, again)

	require.NoError(t, os.WriteFile(path, []byte("validity_limit: 900\nS2_GRS:\n  B4: {a: 400, c: 0.18}\n"), 0644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	edited, err := s.Load("spm-nechad", File(path))
	require.NoError(t, err)
	assert.Equal(t, 900.0, edited.ValidityLimit, "an edited file is read again")

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = s.Load("spm-nechad", File(empty))
	assert.Error(t, err)
}

func TestStore_UserDirOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spm-han.yaml"), []byte(`
Local_2024:
  validity_limit: 100
  S2_GRS: {a_low: 1, c_low: 1, a_high: 2, c_high: 2, switch_inf: 0.1, switch_sup: 0.2}
`), 0644))

	s := NewStore(WithUserDir(dir))
	set, err := s.Load("spm-han", Named("Local_2024"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, set.ValidityLimit)

	_, err = s.Load("spm-han", Named("Han_2016"))
	assert.ErrorIs(t, err, config.ErrInvalidInput)

	// Algorithms without a user file fall back to the built-in ones.
	_, err = s.Load("spm-get", Named("GET_2018"))
	assert.NoError(t, err)
}

func TestStore_WithFS(t *testing.T) {
	fsys := fstest.MapFS{
		"x.yaml": {Data: []byte("A:\n  validity_limit: 3\n  S2_GRS: {k: 1}\n")},
		"y.yaml": {Data: []byte("A:\n")},
	}
	s := NewStore(WithFS(fsys))

	set, err := s.Load("x", Named("A"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, set.ValidityLimit)

	_, err = s.Load("y", Named("A"))
	assert.Error(t, err)

	_, err = s.Load("spm-han", Named("Han_2016"))
	assert.ErrorIs(t, err, config.ErrInvalidInput)
}

package batch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forest-guardian/wqindex/internal/algorithm"
	"github.com/forest-guardian/wqindex/internal/cache"
	"github.com/forest-guardian/wqindex/internal/calibration"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/geotiff"
	"github.com/forest-guardian/wqindex/internal/notification"
	"github.com/forest-guardian/wqindex/internal/product"
	"github.com/forest-guardian/wqindex/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const s2Name = "S2A_MSIL2A_20200523T105031_N0214_R051_T31TCJ_20200523T121837.tif"

type fakeSource struct{ dataType string }

func (fakeSource) ReadBands(_ context.Context, names []string) ([]*raster.Grid, error) {
	values := map[string]float64{"B3": 0.08, "B4": 0.05, "B8": 0.3}
	out := make([]*raster.Grid, len(names))
	for i, name := range names {
		out[i] = raster.Fill(2, 2, values[name])
	}
	return out, nil
}

func (f fakeSource) Attributes() map[string]string { return map[string]string{"data_type": f.dataType} }

type harness struct {
	// dataType is the unit declared by the sources, rho when empty.
	dataType string
	fail     atomic.Bool
	opened   atomic.Int32
	mu       sync.Mutex
	paths    []string
}

func (h *harness) open(job Job) (product.BandSource, geotiff.Georef, error) {
	h.opened.Add(1)
	if h.fail.Load() || strings.Contains(job.Input, "broken") {
		return nil, geotiff.Georef{}, errors.New("corrupt file")
	}
	dataType := h.dataType
	if dataType == "" {
		dataType = "rho"
	}
	return fakeSource{dataType: dataType}, geotiff.Georef{GeoTransform: [6]float64{300000, 10, 0, 5000000, 0, -10}}, nil
}

func (h *harness) write(path string, p *product.Product, _ geotiff.Georef) error {
	h.mu.Lock()
	h.paths = append(h.paths, path)
	h.mu.Unlock()
	return os.WriteFile(path, []byte(p.Title()), 0644)
}

func newTestRunner(t *testing.T, h *harness, opts ...Option) (*Runner, string) {
	t.Helper()
	catalog, err := config.Default()
	require.NoError(t, err)
	registry := algorithm.NewRegistry(algorithm.Env{Catalog: catalog, Calibrations: calibration.NewStore()})
	out := t.TempDir()
	opts = append([]Option{WithOpener(h.open), WithWriter(h.write), WithWorkers(2), WithProgress(io.Discard)}, opts...)
	return NewRunner(product.NewBuilder(registry), out, opts...), out
}

func inputFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("bands"), 0644))
	return path
}

func TestJobsFromRows(t *testing.T) {
	jobs, err := JobsFromRows([]*ManifestRow{
		{InputProduct: "a.tif", ProductType: "S2_GRS", Algo: "ndvi", Bands: "B4 B8", CodeSite: "lake"},
		{InputProduct: "b.tif", ProductType: "L8_GRS", Algo: "ndwi"},
		{InputProduct: "a.tif", ProductType: "S2_GRS", Algo: "spm-nechad", Band: "B5", Calibration: "Nechad_2010"},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "a.tif", jobs[0].Input)
	assert.Equal(t, []string{"B4", "B8"}, jobs[0].BandNames)
	assert.Empty(t, jobs[0].DataType, "a blank column defers to the source")
	assert.Equal(t, "lake", jobs[0].CodeSite)
	assert.Equal(t, []product.AlgoSpec{
		{Name: "ndvi"},
		{Name: "spm-nechad", Band: "B5", Calibration: calibration.Named("Nechad_2010")},
	}, jobs[0].Algorithms)
	assert.Equal(t, "L8_GRS", jobs[1].ProductType)
}

func TestJobsFromRows_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		rows []*ManifestRow
	}{
		{"empty", nil},
		{"missing algo", []*ManifestRow{{InputProduct: "a.tif", ProductType: "S2_GRS"}}},
		{"unknown product type", []*ManifestRow{{InputProduct: "a.tif", ProductType: "S3_OLCI", Algo: "ndvi"}}},
		{"bad data type", []*ManifestRow{{InputProduct: "a.tif", ProductType: "S2_GRS", Algo: "ndvi", DataType: "radiance"}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := JobsFromRows(tc.rows)
			assert.ErrorIs(t, err, config.ErrInvalidInput)
		})
	}
}

func TestRunner_Run_SourceDataType(t *testing.T) {
	h := &harness{dataType: "rrs"}
	runner, _ := newTestRunner(t, h)
	input := inputFile(t, s2Name)

	jobs, err := JobsFromRows([]*ManifestRow{
		{InputProduct: input, ProductType: "S2_ESA_L2A", Algo: "spm-nechad"},
		{InputProduct: input, ProductType: "S2_GRS", Algo: "spm-nechad", DataType: "rho"},
	})
	require.NoError(t, err)
	report, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, report, 2)

	assert.InDelta(t, 355.85*0.05*math.Pi/(1-0.05*math.Pi/0.1728), float64(report[0].Mean), 1e-6, "rrs from the source is converted")
	assert.InDelta(t, 355.85*0.05/(1-0.05/0.1728), float64(report[1].Mean), 1e-6, "the manifest unit wins")
}

func TestReadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	content := "input_product,product_type,algo,band,calibration,design\n" +
		"a.tif,S2_GRS,chla-gitelson,,,2_bands\n" +
		"a.tif,S2_GRS,ndci,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	jobs, err := ReadManifest(path)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []product.AlgoSpec{{Name: "chla-gitelson", Design: "2_bands"}, {Name: "ndci"}}, jobs[0].Algorithms)

	_, err = ReadManifest(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRunner_Run(t *testing.T) {
	h := &harness{}
	runner, out := newTestRunner(t, h)
	good := inputFile(t, s2Name)

	report, err := runner.Run(context.Background(), []Job{
		{Input: good, ProductType: "S2_ESA_L2A", Algorithms: []product.AlgoSpec{{Name: "ndvi"}, {Name: "ndwi"}}},
		{Input: "broken.tif", ProductType: "S2_ESA_L2A", Algorithms: []product.AlgoSpec{{Name: "ndvi"}}},
	})
	require.NoError(t, err)
	require.Len(t, report, 3)

	ndvi := report[0]
	assert.Equal(t, "ndvi", ndvi.Algorithm)
	assert.Equal(t, "ndvi", ndvi.Variable)
	assert.Equal(t, 4, ndvi.ValidPixels)
	assert.InDelta(t, 0.25/0.35, float64(ndvi.Mean), 1e-9)
	assert.Equal(t, filepath.Join(out, "S2A31TCJ20200523_31TCJ_Sen2Cor_ndvi_params-res=10m.tif"), ndvi.Output)
	assert.Empty(t, ndvi.Error)
	assert.Equal(t, "ndwi", report[1].Algorithm)

	failed := report[2]
	assert.Equal(t, "broken.tif", failed.Input)
	assert.Contains(t, failed.Error, "corrupt file")
	assert.True(t, math.IsNaN(float64(failed.Mean)))
	assert.Len(t, h.paths, 2)
}

func TestRunner_Run_AllFailed(t *testing.T) {
	runner, _ := newTestRunner(t, &harness{})
	report, err := runner.Run(context.Background(), []Job{
		{Input: "broken.tif", ProductType: "S2_GRS", Algorithms: []product.AlgoSpec{{Name: "ndvi"}}},
		{Input: inputFile(t, "x.tif"), ProductType: "S2_GRS", Algorithms: []product.AlgoSpec{{Name: "chla-oc9"}}},
	})
	assert.ErrorIs(t, err, ErrAllJobsFailed)
	require.Len(t, report, 2)
	assert.Contains(t, report[1].Error, "chla-oc9")

	_, err = runner.Run(context.Background(), nil)
	assert.ErrorIs(t, err, config.ErrInvalidInput)
}

func TestRunner_Run_Canceled(t *testing.T) {
	h := &harness{}
	runner, _ := newTestRunner(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, []Job{{Input: inputFile(t, s2Name), ProductType: "S2_ESA_L2A", Algorithms: []product.AlgoSpec{{Name: "ndvi"}}}})
	assert.ErrorIs(t, err, ErrAllJobsFailed)
	assert.Zero(t, h.opened.Load())
}

func TestRunner_Run_UsesCache(t *testing.T) {
	h := &harness{}
	store := cache.NewFileCache[[]ReportRow](t.TempDir())
	runner, _ := newTestRunner(t, h, WithCache(store))
	jobs := []Job{{Input: inputFile(t, s2Name), ProductType: "S2_ESA_L2A", Algorithms: []product.AlgoSpec{{Name: "ndvi"}}}}

	first, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, h.opened.Load())

	// A missing output invalidates the cached summary.
	require.NoError(t, os.Remove(first[0].Output))
	_, err = runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.opened.Load())

	// and drops it even when the rebuild fails.
	key, ok := runner.cacheKey(jobs[0])
	require.True(t, ok)
	require.NoError(t, os.Remove(first[0].Output))
	h.fail.Store(true)
	_, err = runner.Run(context.Background(), jobs)
	assert.ErrorIs(t, err, ErrAllJobsFailed)
	_, ok = store.Get(key)
	assert.False(t, ok)
}

func TestRunner_Run_CalibrationFileInvalidatesCache(t *testing.T) {
	h := &harness{}
	runner, _ := newTestRunner(t, h, WithCache(cache.NewFileCache[[]ReportRow](t.TempDir())))
	calib := filepath.Join(t.TempDir(), "lake.yaml")
	require.NoError(t, os.WriteFile(calib, []byte("validity_limit: 1000\nS2_ESA_L2A:\n  B4: {a: 100, c: 0.5}\n"), 0644))
	jobs := []Job{{
		Input:       inputFile(t, s2Name),
		ProductType: "S2_ESA_L2A",
		Algorithms:  []product.AlgoSpec{{Name: "spm-nechad", Calibration: calibration.File(calib)}},
	}}

	first, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.opened.Load())

	require.NoError(t, os.WriteFile(calib, []byte("validity_limit: 1000\nS2_ESA_L2A:\n  B4: {a: 200, c: 0.5}\n"), 0644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(calib, later, later))
	second, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.opened.Load())
	assert.InDelta(t, 2*float64(first[0].Mean), float64(second[0].Mean), 1e-9)
}

func TestRunner_Run_Notifies(t *testing.T) {
	var colors []int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg notification.DiscordMessage
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg)) || !assert.NotEmpty(t, msg.Embeds) {
			return
		}
		mu.Lock()
		colors = append(colors, msg.Embeds[0].Color)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	runner, _ := newTestRunner(t, &harness{}, WithNotifier(notification.NewDiscord(server.URL)))
	good := Job{Input: inputFile(t, s2Name), ProductType: "S2_ESA_L2A", Algorithms: []product.AlgoSpec{{Name: "ndvi"}}}
	bad := Job{Input: "broken.tif", ProductType: "S2_ESA_L2A", Algorithms: []product.AlgoSpec{{Name: "ndvi"}}}

	_, err := runner.Run(context.Background(), []Job{good})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), []Job{good, bad})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), []Job{bad})
	require.Error(t, err)

	assert.Equal(t, []int{65280, 16753920, 16711680}, colors)
}

func TestReport_UndefinedStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	nan := Stat(math.NaN())
	rows := []ReportRow{
		{Input: "a.tif", Algorithm: "ndvi", Variable: "ndvi", ValidPixels: 2, Min: 0.1, Max: 0.5, Mean: 0.3, Output: "a_ndvi.tif"},
		{Input: "b.tif", Algorithm: "ndvi", Min: nan, Max: nan, Mean: nan, Error: "corrupt file"},
	}
	require.NoError(t, WriteReport(path, rows))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Equal(t, "input,algorithm,variable,valid_pixels,min,max,mean,calibration,output,error", lines[0])
	assert.Equal(t, "b.tif,ndvi,,0,,,,,,corrupt file", lines[2])

	got, err := ReadReport(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.3, float64(got[0].Mean), 1e-12)
	assert.True(t, math.IsNaN(float64(got[1].Min)))

	b, err := json.Marshal(rows[1])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mean":null`)
}

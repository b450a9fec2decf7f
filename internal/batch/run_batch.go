package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/forest-guardian/wqindex/internal/cache"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/geotiff"
	"github.com/forest-guardian/wqindex/internal/naming"
	"github.com/forest-guardian/wqindex/internal/notification"
	"github.com/forest-guardian/wqindex/internal/product"
	"github.com/forest-guardian/wqindex/internal/properties"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// ErrAllJobsFailed is returned by Run when no job produced a product.
var ErrAllJobsFailed = errors.New("every batch job failed")

// OpenFunc opens the bands of a job's input product.
type OpenFunc func(job Job) (product.BandSource, geotiff.Georef, error)

// WriteFunc writes one product to path.
type WriteFunc func(path string, p *product.Product, ref geotiff.Georef) error

// OpenGeoTIFF opens the input as a multi-band GeoTIFF.
func OpenGeoTIFF(job Job) (product.BandSource, geotiff.Georef, error) {
	var opts []geotiff.SourceOption
	if len(job.BandNames) > 0 {
		opts = append(opts, geotiff.WithBandNames(job.BandNames...))
	}
	src, err := geotiff.Open(job.Input, opts...)
	if err != nil {
		return nil, geotiff.Georef{}, err
	}
	return src, src.Georef(), nil
}

type Runner struct {
	builder   *product.Builder
	outputDir string
	open      OpenFunc
	write     WriteFunc
	workers   int
	cache     *cache.FileCache[[]ReportRow]
	notifier  *notification.Discord
	logger    *zap.Logger
	progress  io.Writer
}

type Option func(*Runner)

func WithOpener(open OpenFunc) Option { return func(r *Runner) { r.open = open } }

func WithWriter(write WriteFunc) Option { return func(r *Runner) { r.write = write } }

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithCache skips jobs whose inputs and settings did not change since a
// previous run.
func WithCache(c *cache.FileCache[[]ReportRow]) Option { return func(r *Runner) { r.cache = c } }

func WithNotifier(d *notification.Discord) Option { return func(r *Runner) { r.notifier = d } }

func WithLogger(logger *zap.Logger) Option { return func(r *Runner) { r.logger = logger } }

// WithProgress writes the progress bar to w instead of the terminal.
func WithProgress(w io.Writer) Option { return func(r *Runner) { r.progress = w } }

func NewRunner(builder *product.Builder, outputDir string, opts ...Option) *Runner {
	r := &Runner{
		builder:   builder,
		outputDir: outputDir,
		open:      OpenGeoTIFF,
		write:     geotiff.WriteProduct,
		workers:   properties.Workers(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every job and returns the report rows in job order. A job
// failure is reported in its rows; Run itself fails only when every job
// failed or the output directory cannot be created.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]ReportRow, error) {
	if len(jobs) == 0 {
		return nil, config.InputError("no job to run")
	}
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	r.logger.Info("Starting batch", zap.Int("jobs", len(jobs)), zap.Int("workers", r.workers), zap.String("output", r.outputDir))

	var bar *progressbar.ProgressBar
	if r.progress != nil {
		bar = progressbar.NewOptions64(int64(len(jobs)),
			progressbar.OptionSetWriter(r.progress),
			progressbar.OptionSetDescription("Building L3 products"))
	} else {
		bar = progressbar.Default(int64(len(jobs)), "Building L3 products")
	}

	var (
		mu      sync.Mutex
		results = make([][]ReportRow, len(jobs))
		failed  int
	)
	wp := workerpool.New(r.workers)
	for i, job := range jobs {
		wp.Submit(func() {
			rows, err := r.runJob(ctx, job)
			if err != nil {
				r.logger.Warn("Job failed", zap.String("input", job.Input), zap.Error(err))
				rows = failedRows(job, err)
			}

			mu.Lock()
			defer mu.Unlock()
			results[i] = rows
			if err != nil {
				failed++
			}
			bar.Add(1)
		})
	}
	wp.StopWait()
	bar.Finish()

	var report []ReportRow
	for _, rows := range results {
		report = append(report, rows...)
	}
	r.logger.Info("Batch done", zap.Int("jobs", len(jobs)), zap.Int("failed", failed))
	r.notify(ctx, len(jobs), failed)

	if failed == len(jobs) {
		return report, ErrAllJobsFailed
	}
	return report, nil
}

func (r *Runner) runJob(ctx context.Context, job Job) ([]ReportRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, cacheable := r.cacheKey(job)
	if cacheable {
		if rows, ok := r.cache.Get(key); ok {
			if outputsExist(rows) {
				r.logger.Debug("Using cached summary", zap.String("input", job.Input))
				return rows, nil
			}
			if err := r.cache.Delete(key); err != nil {
				r.logger.Warn("Failed to drop stale job summary", zap.String("input", job.Input), zap.Error(err))
			}
		}
	}

	src, ref, err := r.open(job)
	if err != nil {
		return nil, fmt.Errorf("failed to open input product: %w", err)
	}
	products, err := r.builder.Build(ctx, product.Request{
		ProductType: job.ProductType,
		Algorithms:  job.Algorithms,
		Source:      src,
		DataType:    job.DataType,
	})
	if err != nil {
		return nil, err
	}

	info, roi, err := r.naming(job)
	if err != nil {
		return nil, err
	}
	res := math.Abs(ref.GeoTransform[1])

	var rows []ReportRow
	for _, p := range products {
		path := filepath.Join(r.outputDir, naming.L3Filename(naming.ForProduct(p, info, roi, res)))
		if err := r.write(path, p, ref); err != nil {
			return nil, fmt.Errorf("failed to write %s product: %w", p.Algorithm, err)
		}
		r.logger.Debug("Product written", zap.String("algorithm", p.Algorithm), zap.String("path", path))
		rows = append(rows, summarize(job.Input, path, p)...)
	}

	if cacheable {
		if err := r.cache.Set(key, rows); err != nil {
			r.logger.Warn("Failed to cache job summary", zap.String("input", job.Input), zap.Error(err))
		}
	}
	return rows, nil
}

func (r *Runner) naming(job Job) (naming.Info, string, error) {
	info, err := naming.Describe(job.Input, job.ProductType)
	if err != nil {
		return naming.Info{}, "", err
	}
	if job.WKT == "" {
		return info, naming.ROI(job.CodeSite, nil, info.Tile), nil
	}
	geom, err := naming.ParseWKT(job.WKT)
	if err != nil {
		return naming.Info{}, "", err
	}
	return info, naming.ROI(job.CodeSite, geom, info.Tile), nil
}

// cacheKey depends on the job settings and on the size and modification
// time of the input file and of custom calibration files.
func (r *Runner) cacheKey(job Job) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	stat, err := os.Stat(job.Input)
	if err != nil {
		return "", false
	}
	params := []any{properties.Version, r.outputDir, job.Input, stat.Size(), stat.ModTime().UnixNano(),
		job.ProductType, job.DataType, strings.Join(job.BandNames, ","), job.CodeSite, job.WKT}
	for _, a := range job.Algorithms {
		params = append(params, a.Name, a.Band, a.Calibration.String(), a.Design)
		if a.Calibration.Path == "" {
			continue
		}
		calib, err := os.Stat(a.Calibration.Path)
		if err != nil {
			return "", false
		}
		params = append(params, calib.Size(), calib.ModTime().UnixNano())
	}
	return r.cache.GenerateKey(params...), true
}

func (r *Runner) notify(ctx context.Context, total, failed int) {
	if !r.notifier.Enabled() {
		return
	}
	fields := []notification.DiscordField{
		{Name: "Jobs", Value: fmt.Sprint(total), Inline: true},
		{Name: "Failed", Value: fmt.Sprint(failed), Inline: true},
		{Name: "Output", Value: r.outputDir},
	}
	var err error
	switch {
	case failed == total:
		err = r.notifier.SendError(ctx, "Every L3 job failed", fields...)
	case failed > 0:
		err = r.notifier.SendWarning(ctx, fmt.Sprintf("%d of %d L3 jobs failed", failed, total), fields...)
	default:
		err = r.notifier.SendSuccess(ctx, fmt.Sprintf("%d L3 jobs done", total), fields...)
	}
	if err != nil {
		r.logger.Warn("Failed to send notification", zap.Error(err))
	}
}

func outputsExist(rows []ReportRow) bool {
	for _, row := range rows {
		if _, err := os.Stat(row.Output); err != nil {
			return false
		}
	}
	return len(rows) > 0
}

func failedRows(job Job, err error) []ReportRow {
	rows := make([]ReportRow, len(job.Algorithms))
	nan := Stat(math.NaN())
	for i, a := range job.Algorithms {
		rows[i] = ReportRow{
			Input:       job.Input,
			Algorithm:   a.Name,
			Min:         nan,
			Max:         nan,
			Mean:        nan,
			Calibration: a.Calibration.String(),
			Error:       err.Error(),
		}
	}
	return rows
}

func summarize(input, output string, p *product.Product) []ReportRow {
	calib, _ := p.Meta["calibration"].(string)
	rows := make([]ReportRow, 0, len(p.Variables))
	for _, v := range p.Variables {
		stats := v.Data.Stats()
		rows = append(rows, ReportRow{
			Input:       input,
			Algorithm:   p.Algorithm,
			Variable:    v.Name,
			ValidPixels: stats.Valid,
			Min:         Stat(stats.Min),
			Max:         Stat(stats.Max),
			Mean:        Stat(stats.Mean),
			Calibration: calib,
			Output:      output,
		})
	}
	return rows
}

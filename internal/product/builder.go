package product

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/forest-guardian/wqindex/internal/algorithm"
	"github.com/forest-guardian/wqindex/internal/config"
	"github.com/forest-guardian/wqindex/internal/properties"
	"github.com/forest-guardian/wqindex/internal/raster"
	"github.com/forest-guardian/wqindex/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const Convention = "CF-1.8"

// dataTypeAttr is consumed by the builder and never copied to products.
const dataTypeAttr = "data_type"

type Builder struct {
	registry *algorithm.Registry
	logger   *zap.Logger
	now      func() time.Time
	workers  int
}

type Option func(*Builder)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithWorkers bounds the number of algorithms computed at once.
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

func NewBuilder(registry *algorithm.Registry, opts ...Option) *Builder {
	b := &Builder{registry: registry, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build computes every requested algorithm and returns one product per
// algorithm, in request order. Bands shared by several algorithms are read
// once.
func (b *Builder) Build(ctx context.Context, req Request) ([]*Product, error) {
	if !config.IsProductType(req.ProductType) {
		return nil, config.InputError("unknown product type %q", req.ProductType)
	}
	if len(req.Algorithms) == 0 {
		return nil, config.InputError("at least one algorithm is required")
	}
	if req.Source == nil {
		return nil, fmt.Errorf("no band source given")
	}
	dataType, err := b.dataType(req)
	if err != nil {
		return nil, err
	}

	algos := make([]algorithm.Algorithm, len(req.Algorithms))
	requested := make([][]string, len(req.Algorithms))
	for i, spec := range req.Algorithms {
		algo, err := b.registry.New(spec.Name, spec.options(req.ProductType))
		if err != nil {
			return nil, fmt.Errorf("failed to set up %s: %w", spec.Name, err)
		}
		algos[i] = algo
		requested[i] = algo.RequestedBands()
	}

	names := utils.Union(requested...)
	b.logger.Debug("Reading bands", zap.Strings("bands", names), zap.String("product_type", req.ProductType))
	grids, err := req.Source.ReadBands(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to read bands: %w", err)
	}
	if len(grids) != len(names) {
		return nil, fmt.Errorf("band source returned %d bands for %d requested", len(grids), len(names))
	}
	bands := make(map[string]*raster.Grid, len(names))
	for i, name := range names {
		if grids[i] == nil {
			return nil, fmt.Errorf("band %s is missing from source", name)
		}
		if !grids[i].SameShape(grids[0]) {
			return nil, fmt.Errorf("band %s is %dx%d, expected %dx%d", name, grids[i].Width, grids[i].Height, grids[0].Width, grids[0].Height)
		}
		bands[name] = grids[i]
	}

	attrs := b.sourceAttrs(req.Source)
	products := make([]*Product, len(algos))
	g, ctx := errgroup.WithContext(ctx)
	if b.workers > 0 {
		g.SetLimit(b.workers)
	}
	for i, algo := range algos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in := algorithm.Input{DataType: dataType}
			for _, name := range requested[i] {
				in.Bands = append(in.Bands, bands[name])
			}
			start := time.Now()
			p, err := b.assemble(algo, req.ProductType, in, attrs)
			if err != nil {
				return err
			}
			b.logger.Debug("Algorithm computed",
				zap.String("algorithm", algo.Name()),
				zap.Duration("elapsed", time.Since(start)))
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

func (b *Builder) dataType(req Request) (algorithm.DataType, error) {
	if req.DataType != "" {
		return algorithm.ParseDataType(string(req.DataType))
	}
	return algorithm.ParseDataType(req.Source.Attributes()[dataTypeAttr])
}

func (b *Builder) sourceAttrs(src BandSource) map[string]string {
	attrs := maps.Clone(src.Attributes())
	if attrs == nil {
		attrs = map[string]string{}
	}
	delete(attrs, dataTypeAttr)
	return attrs
}

func (b *Builder) assemble(algo algorithm.Algorithm, productType string, in algorithm.Input, sourceAttrs map[string]string) (*Product, error) {
	variables, longNames, err := b.registry.Catalog().Variables(algo.Name())
	if err != nil {
		return nil, err
	}
	out, err := algo.Compute(in)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", algo.Name(), err)
	}
	if len(out) != len(variables) {
		return nil, fmt.Errorf("%s returned %d outputs for %d declared variables", algo.Name(), len(out), len(variables))
	}

	meta := algo.Meta()
	p := &Product{
		Algorithm:   algo.Name(),
		ProductType: productType,
		Meta:        meta,
		Attrs:       maps.Clone(sourceAttrs),
	}
	p.Attrs["Convention"] = Convention
	p.Attrs["title"] = fmt.Sprintf("%s from %s", algo.Name(), productType)
	p.Attrs["history"] = fmt.Sprintf("created with %s (v%s) on %s", properties.ToolName, properties.Version, b.now().Format(time.DateOnly))
	for i, grid := range out {
		attrs := map[string]any{
			"grid_mapping": "crs",
			"long_name":    longNames[i],
		}
		for k, v := range meta {
			attrs[k] = v
		}
		p.Variables = append(p.Variables, Variable{
			Name:     variables[i],
			LongName: longNames[i],
			Data:     grid.Finite(),
			Attrs:    attrs,
		})
	}
	return p, nil
}

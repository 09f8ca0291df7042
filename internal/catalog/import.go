package catalog

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spatial-catalog/internal/model"
)

// Fixture is the YAML document read by Import.
type Fixture struct {
	Packages []model.Package `yaml:"packages"`
}

// ImportResult summarizes an Import run.
type ImportResult struct {
	Created int
	Updated int
	Failed  []ImportFailure
}

// ImportFailure records a package the hooks or store rejected.
type ImportFailure struct {
	Name string
	Err  error
}

// LoadFixture decodes a package fixture.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, eris.Wrap(err, "catalog: decode fixture")
	}
	return &f, nil
}

// Import creates or updates every package in the fixture, matched by name,
// running at most concurrency writes at once. A package that fails is
// recorded in the result and does not stop the others. Only context
// cancellation aborts the run.
func (s *Service) Import(ctx context.Context, r io.Reader, concurrency int) (*ImportResult, error) {
	fixture, err := LoadFixture(r)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	log := zap.L().With(zap.String("component", "import"), zap.Int("packages", len(fixture.Packages)))
	log.Info("importing packages")

	var (
		mu  sync.Mutex
		res ImportResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range fixture.Packages {
		pkg := &fixture.Packages[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			created, err := s.upsertByName(gctx, pkg)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Warn("package import failed", zap.String("name", pkg.Name), zap.Error(err))
				res.Failed = append(res.Failed, ImportFailure{Name: pkg.Name, Err: err})
			case created:
				res.Created++
			default:
				res.Updated++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &res, eris.Wrap(err, "catalog: import")
	}
	log.Info("import complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", len(res.Failed)))
	return &res, nil
}

func (s *Service) upsertByName(ctx context.Context, pkg *model.Package) (bool, error) {
	existing, err := s.store.GetPackage(ctx, pkg.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		_, err = s.Create(ctx, pkg)
		return true, err
	case err != nil:
		return false, err
	}
	update := pkg.Clone()
	update.ID = existing.ID
	_, err = s.Update(ctx, update)
	return false, err
}

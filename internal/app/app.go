// Package app wires the harness together: dataset generation, artifact
// writing, the benchmark run, the summary, and the optional sync of
// results to object storage.
package app

import (
	"context"
	"log"
	"os"

	"github.com/stratabench/stratabench/internal/config"
	"github.com/stratabench/stratabench/internal/dataset"
	"github.com/stratabench/stratabench/internal/engine"
	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/internal/format"
	"github.com/stratabench/stratabench/internal/metrics"
	"github.com/stratabench/stratabench/internal/plancontrol"
	"github.com/stratabench/stratabench/internal/runner"
	"github.com/stratabench/stratabench/internal/storage"
)

// App is one configured benchmark invocation.
type App struct {
	cfg *config.Config
}

// New validates the configuration and creates the App.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewInvalidConfiguration(err.Error())
	}
	return &App{cfg: cfg}, nil
}

// Run executes the full pipeline: generate, write, benchmark, summarize,
// sync.
func (a *App) Run(ctx context.Context) error {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return errors.NewInternal("creating directories", err)
	}

	ds, err := dataset.Generate(dataset.GeneratorConfig{
		FactRows: a.cfg.Dataset.FactRows,
		DimRows:  a.cfg.Dataset.DimRows,
		Seed:     a.cfg.Dataset.Seed,
	})
	if err != nil {
		return err
	}
	log.Printf("generated dataset: %d facts, %d dims, seed %d",
		len(ds.Facts), len(ds.Dims), ds.Seed)

	store := format.NewStore(a.cfg.DataDir)
	if err := a.writeArtifacts(ctx, store, ds); err != nil {
		return err
	}

	eng := engine.New(store)
	eng.SetTableStats(engine.TableStats{
		FactRows: int64(len(ds.Facts)),
		DimRows:  int64(len(ds.Dims)),
	})

	recorder, err := metrics.Open(a.cfg.LogPath())
	if err != nil {
		return err
	}
	defer recorder.Close()

	r := runner.New(a.cfg, store, plancontrol.New(eng), recorder)
	if _, err := r.Run(ctx); err != nil {
		return err
	}

	// Summarize everything in the log, resumed cells included.
	trials, err := metrics.ReadAll(a.cfg.LogPath())
	if err != nil {
		return err
	}
	metrics.WriteSummary(os.Stdout, trials)

	return a.syncResults(ctx)
}

// writeArtifacts persists both tables in every matrix encoding and
// verifies each round trip before any trial runs against it.
func (a *App) writeArtifacts(ctx context.Context, store *format.Store, ds *dataset.Dataset) error {
	for _, enc := range a.cfg.MatrixEncodings() {
		factArt, err := store.WriteFacts(ctx, ds.Facts, enc)
		if err != nil {
			return err
		}
		dimArt, err := store.WriteDims(ctx, ds.Dims, enc)
		if err != nil {
			return err
		}

		facts, err := store.ReadFacts(ctx, enc)
		if err != nil {
			return err
		}
		if len(facts) != len(ds.Facts) {
			return errors.New(errors.CategoryFormat, errors.CodeSchemaMismatch,
				"fact round trip lost rows on encoding "+string(enc))
		}
		dims, err := store.ReadDims(ctx, enc)
		if err != nil {
			return err
		}
		if len(dims) != len(ds.Dims) {
			return errors.New(errors.CategoryFormat, errors.CodeSchemaMismatch,
				"dimension round trip lost rows on encoding "+string(enc))
		}

		size, err := store.EncodingSize(enc)
		if err != nil {
			return err
		}
		log.Printf("wrote %s: %d facts (%s) + %d dims (%s), %s total",
			enc, factArt.RowCount, metrics.FormatBytes(factArt.SizeBytes),
			dimArt.RowCount, metrics.FormatBytes(dimArt.SizeBytes),
			metrics.FormatBytes(size))
	}
	return nil
}

// syncResults pushes the results directory to the configured object
// store. A sync failure is reported but the run's local results stand.
func (a *App) syncResults(ctx context.Context) error {
	var store storage.ObjectStore
	var err error

	switch a.cfg.Storage.Type {
	case "none", "":
		return nil
	case "local":
		store, err = storage.NewLocalStore(a.cfg.Storage.Path)
	case "s3":
		store, err = storage.NewS3Store(ctx, a.cfg.Storage.S3.Bucket, storage.S3Options{
			Region:       a.cfg.Storage.S3.Region,
			Endpoint:     a.cfg.Storage.S3.Endpoint,
			UsePathStyle: a.cfg.Storage.S3.Endpoint != "",
		})
	}
	if err != nil {
		return errors.NewInternal("initializing object storage", err)
	}

	if err := storage.SyncDir(ctx, store, a.cfg.ResultsDir, "results"); err != nil {
		return errors.NewInternal("syncing results", err)
	}
	if err := storage.VerifySync(ctx, store, a.cfg.ResultsDir, "results"); err != nil {
		return errors.NewInternal("verifying synced results", err)
	}

	objects, err := store.ListObjects(ctx, "results")
	if err != nil {
		return errors.NewInternal("listing synced results", err)
	}
	log.Printf("synced %d objects to %s storage", len(objects), a.cfg.Storage.Type)
	return nil
}

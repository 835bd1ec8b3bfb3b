// Package fainderql is the public API for the query engine: a thin
// re-export of internal/engine's facade plus the config loader, so a
// Go program can embed the engine directly instead of shelling out to
// the fainderqld CLI.
package fainderql

import (
	"context"
	"time"

	"github.com/fainderql/queryengine/internal/config"
	"github.com/fainderql/queryengine/internal/engine"
	"github.com/fainderql/queryengine/internal/fulltext"
	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/optimize"
	"github.com/fainderql/queryengine/internal/percentile"
	"github.com/fainderql/queryengine/internal/persist"
)

// Re-exported types so callers need only import this package.
type (
	Engine         = engine.Engine
	ExecuteOptions = engine.ExecuteOptions
	Ranked         = engine.Ranked
	Mode           = percentile.Mode
	Config         = config.Config
)

// Percentile modes, re-exported from internal/percentile.
const (
	LowMemory     = percentile.LowMemory
	FullPrecision = percentile.FullPrecision
	FullRecall    = percentile.FullRecall
	Exact         = percentile.Exact
)

// LoadConfig reads a YAML config file, applying defaults and environment
// overrides. An empty path uses defaults only.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Open builds an Engine from the index generation currently on disk at
// cfg.DataDir: id-space metadata, percentile histograms, the column-name
// index, and a full-text connector dialing cfg.FullText.Host:Port. The
// caller owns the returned Engine and must Close it.
func Open(cfg Config) (*Engine, error) {
	maps, err := persist.LoadMetadata(cfg.MetadataPath())
	if err != nil {
		return nil, err
	}
	hists, err := persist.LoadHistograms(cfg.HistogramPath())
	if err != nil {
		return nil, err
	}
	col, err := persist.LoadColumnIndex(cfg.ColIndexPath())
	if err != nil {
		return nil, err
	}

	percOpts := percentile.Options{
		Workers:              cfg.Percentile.Workers,
		ParallelExactEnabled: cfg.Percentile.ParallelExactEnabled,
		ContiguousPartitions: cfg.Percentile.ContiguousPartitions,
	}
	percIdx := percentile.NewIndex(hists, percOpts)

	ft := fulltext.NewRPCConnector(fulltext.RPCConfig{
		Host:                cfg.FullText.Host,
		Port:                cfg.FullText.Port,
		DialTimeout:         time.Duration(cfg.FullText.DialTimeoutMS) * time.Millisecond,
		RequestTimeout:      time.Duration(cfg.FullText.RequestTimeout) * time.Millisecond,
		CircuitMaxFailures:  cfg.FullText.CircuitMaxFailures,
		CircuitResetTimeout: time.Duration(cfg.FullText.CircuitResetTimeoutMS) * time.Millisecond,
	})

	optOpts := optimize.Options{
		MergeKeywords: cfg.Optimizer.MergeKeywords,
		ReorderByCost: cfg.Optimizer.ReorderByCost,
		Cost:          optimize.DefaultCostModel(),
	}

	return engine.New(percIdx, col, ft, maps, optOpts, percOpts, cfg.Cache.QueryCacheSize), nil
}

// idspace.DocId is re-exported under its own name since Ranked.Doc and
// highlight maps are keyed by it.
type DocId = idspace.DocId

// Execute is a convenience wrapper equivalent to e.Execute(ctx, query, opts).
func Execute(ctx context.Context, e *Engine, query string, opts ExecuteOptions) ([]Ranked, error) {
	ranked, _, err := e.Execute(ctx, query, opts)
	return ranked, err
}

package cmd

import (
	"github.com/fainderql/queryengine/internal/engine"
	"github.com/fainderql/queryengine/pkg/fainderql"
)

// loadConfig reads the config file named by the --config flag, falling
// back to defaults when it is unset.
func loadConfig() (fainderql.Config, error) {
	return fainderql.LoadConfig(cfgFile)
}

// openEngine builds an Engine from the generation currently on disk,
// delegating to pkg/fainderql.Open so the CLI and any embedding Go
// program wire the engine up identically. Callers own the returned
// Engine and must Close it.
func openEngine(cfg fainderql.Config) (*engine.Engine, error) {
	return fainderql.Open(cfg)
}

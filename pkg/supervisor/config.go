package supervisor

import (
	"github.com/pion/logging"

	"github.com/zajel/headless/internal/config"
)

// Config configures a Supervisor.
type Config struct {
	// Core holds every bounded-store limit, path, and cadence threaded
	// down into each subsystem's own Config at construction time.
	Core config.Config

	// LoggerFactory builds every subsystem's scoped logger. Nil means
	// pion's default logger factory.
	LoggerFactory logging.LoggerFactory

	// OnStateChanged, if set, is called after every Supervisor state
	// transition.
	OnStateChanged func(State)
}

func (c *Config) applyDefaults() {
	c.Core.ApplyDefaults()
}

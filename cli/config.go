// Package cli provides the command-line interface for the supplies ledger.
// This file re-exports config types from internal/config for public API.
package cli

import (
	"github.com/zot/supplies/internal/config"
)

// Re-export config types for public API
type (
	Config        = config.Config
	ServerConfig  = config.ServerConfig
	StorageConfig = config.StorageConfig
	RulesConfig   = config.RulesConfig
	LoggingConfig = config.LoggingConfig
	Overrides     = config.Overrides
	Duration      = config.Duration
)

// Re-export config functions for public API
var (
	DefaultConfig = config.DefaultConfig
	LoadConfig    = config.Load
)

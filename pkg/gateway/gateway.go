// Package gateway provides the public API for embedding the frenet gateway.
// This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/frenet-gateway/internal/runtime"
)

// Gateway is the main entry point for running the frenet gateway.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// SinkFactory builds the sink of one relayed webhook.
type SinkFactory = runtime.SinkFactory

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithFileConfig("config.yaml"),
//	    gateway.WithSQLite("./data/gateway.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite          = runtime.WithSQLite
	WithPostgres        = runtime.WithPostgres
	WithMemoryStorage   = runtime.WithMemoryStorage
	WithStorageProvider = runtime.WithStorageProvider

	// Events
	WithDirectEvents   = runtime.WithDirectEvents
	WithEventPublisher = runtime.WithEventPublisher

	// Advanced options
	WithLogger      = runtime.WithLogger
	WithSinkFactory = runtime.WithSinkFactory
)

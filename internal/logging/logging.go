// Package logging builds the zap logger used by the bridge binaries.
package logging

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mrhapile/dotnet-bridge/hostfxr"
	"github.com/mrhapile/dotnet-bridge/internal/options"
	"github.com/mrhapile/dotnet-bridge/runtime"
)

// New creates a logger from the log options.
func New(o options.LogOptions) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if o.Development {
		cfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(o.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.Level, err)
	}
	cfg.Level = level
	if o.Format != "" {
		cfg.Encoding = o.Format
	}

	return cfg.Build()
}

// Init creates a logger and installs it in the bridge packages.
func Init(o options.LogOptions) (*zap.Logger, error) {
	l, err := New(o)
	if err != nil {
		return nil, err
	}
	runtime.SetLogger(l.Named("runtime"))
	hostfxr.SetLogger(l.Named("hostfxr"))
	return l, nil
}

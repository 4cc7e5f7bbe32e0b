// Package log provides the module-scoped loggers used across the broker.
//
// Call sites look like var logger = log.NewModuleLogger(log.Broker), the
// same shape the teacher repo uses for its own per-package loggers.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

// Module names passed to NewModuleLogger.
const (
	Store    = "store"
	Ledger   = "ledger"
	Rules    = "rules"
	Wallet   = "wallet"
	Broker   = "broker"
	ChainIO  = "chainio"
	HTTPAPI  = "httpapi"
	StdioAPI = "stdioapi"
	Audit    = "audit"
	Export   = "export"
	Config   = "config"
)

var (
	baseOnce sync.Once
	base     *zap.Logger
)

func root() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		if os.Getenv("CLAWLET_LOG_DEV") == "true" {
			cfg = zap.NewDevelopmentConfig()
		}
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	})
	return base
}

// NewModuleLogger returns a sugared logger tagged with the given module name.
func NewModuleLogger(module string) *zap.SugaredLogger {
	return root().Sugar().With("module", module)
}

// Sync flushes any buffered log entries. Call on process shutdown.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}

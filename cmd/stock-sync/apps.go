package main

import (
	"log/slog"

	"github.com/stockup888888/stock/internal/config"
	"github.com/stockup888888/stock/internal/gather"
	"github.com/stockup888888/stock/internal/store"
)

// syncApp holds the dependencies of the run command, built by Wire.
type syncApp struct {
	Config *config.Config
	Log    *slog.Logger
	Sync   *gather.Synchronizer
}

// statusApp holds the dependencies of the status command, built by Wire.
type statusApp struct {
	Config  *config.Config
	Archive store.ArchiveStore
	RunLog  store.RunLog
	Symbols []string
}

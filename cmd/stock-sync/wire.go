//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/stockup888888/stock/internal/app"
	"github.com/stockup888888/stock/internal/store"
)

var storeSet = wire.NewSet(
	app.ProvideConfig,
	app.ProvideLogger,
	app.ProvideArchiveStore,
	wire.Bind(new(store.ArchiveStore), new(*store.FileArchiveStore)),
	app.ProvideRunLog,
)

// initializeSync builds everything a sync run needs. Caller must call the
// cleanup when done.
func initializeSync(ctx context.Context, opts app.Options) (*syncApp, func(), error) {
	wire.Build(
		storeSet,
		app.ProvideIngestor,
		app.ProvideFetcher,
		app.ProvideMetrics,
		app.ProvideSyncConfig,
		app.ProvideSynchronizer,
		wire.Struct(new(syncApp), "*"),
	)
	return nil, nil, nil
}

// initializeStatus builds the read-only view used by the status command.
func initializeStatus(ctx context.Context, opts app.Options) (*statusApp, func(), error) {
	wire.Build(
		storeSet,
		app.ResolveSymbols,
		wire.Struct(new(statusApp), "*"),
	)
	return nil, nil, nil
}

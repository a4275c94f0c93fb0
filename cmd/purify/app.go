package main

import (
	"fmt"

	"purify/internal/etl"
	"purify/internal/etl/sources"
	"purify/internal/names"
	"purify/internal/relay"
	"purify/internal/secret"
	"purify/internal/service"
	"purify/internal/storage"
)

// app bundles the long-lived pieces shared by serve and mcp.
type app struct {
	state     *storage.DB
	databases *service.DatabaseService
	relays    *service.RelayService
	cleaner   *names.Normalizer
}

func newCleaner(cfg appConfig) (*names.Normalizer, error) {
	dict, err := names.LoadDictionaryFile(cfg.SuffixTermsFile)
	if err != nil {
		return nil, err
	}
	return names.NewNormalizer(dict), nil
}

func openApp(cfg appConfig, emitter service.EventEmitter) (*app, error) {
	cleaner, err := newCleaner(cfg)
	if err != nil {
		return nil, err
	}

	state, err := storage.New(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	databases := service.NewDatabaseService(storage.NewDBConnectionStore(state), secret.NewEnvStore(""))
	if err := databases.SeedConnections(cfg.Connections); err != nil {
		state.Close()
		return nil, err
	}
	sources.SetDBProvider(databases)

	engine := &etl.Engine{
		Destinations: map[string]etl.Destination{
			"mongodb": &etl.DocumentDestination{Store: databases},
			"http":    &relay.Sink{Timeout: cfg.RequestTimeout},
		},
		Cleaner: cleaner,
	}
	relays := service.NewRelayService(storage.NewRelayStore(state), engine, emitter)

	return &app{state: state, databases: databases, relays: relays, cleaner: cleaner}, nil
}

func (a *app) Close() {
	a.relays.Stop()
	a.databases.Close()
	a.state.Close()
}

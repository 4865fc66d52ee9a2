package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/db"
	"github.com/sells-group/tariff-sync/internal/export"
	"github.com/sells-group/tariff-sync/internal/fetcher"
	"github.com/sells-group/tariff-sync/internal/model"
	"github.com/sells-group/tariff-sync/internal/pipeline"
	"github.com/sells-group/tariff-sync/internal/store"
	"github.com/sells-group/tariff-sync/pkg/sheets"
)

// appEnv holds the initialized store and pipeline used by the serve, sync
// and export commands.
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, db.PoolConfig{
			URL:      cfg.Store.DSN(),
			MinConns: cfg.Store.MinConns,
			MaxConns: cfg.Store.MaxConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initExporter builds the exporter. Without service account credentials,
// sheets destinations fail at export time and xlsx destinations still work.
func initExporter(ctx context.Context) (*export.Exporter, error) {
	opts := []export.Option{export.WithConcurrency(cfg.Sheets.Concurrency)}

	if cfg.Sheets.ServiceAccount == "" {
		if cfg.HasSheets() {
			zap.L().Warn("GOOGLE_SERVICE_ACCOUNT not set, sheets destinations will fail")
		}
		return export.New(opts...), nil
	}

	hc, err := sheets.NewServiceAccountClient(ctx, cfg.Sheets.ServiceAccount)
	if err != nil {
		return nil, model.NewError(model.KindConfiguration, "init sheets", err)
	}
	client := sheets.NewClient(sheets.WithHTTPClient(hc))
	opts = append(opts, export.WithWriter(model.DestinationSheets, export.NewSheetsWriter(client)))
	zap.L().Info("google sheets export enabled", zap.Int("destinations", len(cfg.Sheets.Destinations)))
	return export.New(opts...), nil
}

func initFetcher() fetcher.Fetcher {
	if cfg.WB.APIKey == "" {
		zap.L().Warn("WB_API_KEY not set, tariff sync will fail until configured")
	}
	return fetcher.NewHTTPFetcher(fetcher.Options{
		BaseURL:   cfg.WB.BaseURL,
		APIKey:    cfg.WB.APIKey,
		Timeout:   time.Duration(cfg.WB.TimeoutSecs) * time.Second,
		RateLimit: rate.Limit(cfg.WB.RateLimit),
	})
}

// initEnv opens and migrates the store and builds the pipeline. Callers
// should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	exp, err := initExporter(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &appEnv{
		Store:    st,
		Pipeline: pipeline.New(st, initFetcher(), exp),
	}, nil
}

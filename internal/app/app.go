// Package app wires the simulation components from configuration. Both the
// API server and the worker build the same graph; keeping it in one place
// stops the two binaries drifting apart.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Egg3901/corpgame-sub004/internal/catalog"
	"github.com/Egg3901/corpgame-sub004/internal/clock"
	"github.com/Egg3901/corpgame-sub004/internal/config"
	"github.com/Egg3901/corpgame-sub004/internal/corp"
	"github.com/Egg3901/corpgame-sub004/internal/db"
	"github.com/Egg3901/corpgame-sub004/internal/econ"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/gov"
	"github.com/Egg3901/corpgame-sub004/internal/ledger"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/shares"
	"github.com/Egg3901/corpgame-sub004/internal/store"
	"github.com/Egg3901/corpgame-sub004/internal/turn"
)

type App struct {
	Cfg     config.Config
	Log     *slog.Logger
	Store   store.Store
	Catalog *catalog.Catalog
	Pricer  *pricing.Pricer
	Econ    *econ.Engine
	Ledger  *ledger.Ledger
	Corps   *corp.Service
	Market  *shares.Market
	Gov     *gov.Engine
	Turns   *turn.Processor
	Clock   *clock.Clock

	pool *pgxpool.Pool
}

// Build constructs the component graph. With an empty database URL the app
// runs on the in-memory store; state then lives and dies with the process.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: logger}

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		a.Store = pg
	} else {
		logger.Warn("no database url configured, using in-memory store")
		a.Store = store.NewMemory()
	}

	a.Catalog = catalog.Default()
	a.Clock = clock.New(clock.DefaultEpoch, cfg.QuarterDuration, nil)
	a.Pricer = pricing.New(pricing.Config{
		Floor:            cfg.PriceFloor,
		Ceiling:          cfg.PriceCeiling,
		HistoryRetention: cfg.HistoryRetention,
		TradeWindow:      cfg.TradeWindow,
		TradeMaxSamples:  cfg.TradeMaxSamples,
	}, a.Catalog.BasePrices(), a.Clock.Now)
	a.Econ = econ.New(a.Catalog, a.Pricer)

	locks := game.NewCorpLocks()
	a.Ledger = ledger.New(a.Store, logger, a.Clock.Now)

	valCfg := econ.ValuationConfig{
		BookWeight:      cfg.BookWeight,
		TradeWeight:     cfg.TradeWeight,
		UnitAssetMicros: cfg.UnitAssetCredits * game.MicrosPerCredit,
	}
	a.Market = shares.NewMarket(a.Store, a.Ledger, a.Pricer, locks, valCfg, logger)
	a.Gov = gov.New(a.Store, a.Ledger, a.Pricer, a.Catalog, locks, gov.Config{
		VotingPeriod:            cfg.VotingPeriod,
		SpecialDividendCooldown: cfg.SpecialDividendCooldown,
		MaxBoardSize:            cfg.MaxBoardSize,
		StoreTimeout:            cfg.StoreTimeout,
	}, logger, a.Clock.Now)
	a.Turns = turn.New(a.Store, a.Ledger, a.Econ, a.Pricer, a.Market, locks, turn.Config{
		GameHoursPerQuarter: cfg.GameHoursPerQuarter,
		ActionPointsPerTurn: cfg.ActionPointsPerTurn,
		CEOActionBonus:      cfg.CEOActionBonus,
		ActionPointsCap:     cfg.ActionPointsCap,
		FanOut:              cfg.TurnFanOut,
		StoreTimeout:        cfg.StoreTimeout,
	}, logger, a.Clock.Now)
	a.Corps = corp.New(a.Store, a.Ledger, a.Pricer, a.Catalog, locks, corp.DefaultConfig(), logger, a.Clock.Now)
	return a, nil
}

func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

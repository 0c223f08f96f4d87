// Package shares implements the equity market: buy, sell, issue and split.
// All operations execute at the corporation's current share price, move cash
// and shares through the ledger under the corporation's lock, and refresh the
// valuation before returning.
package shares

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Egg3901/corpgame-sub004/internal/econ"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/ledger"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/store"
)

type Market struct {
	store  store.Store
	ledger *ledger.Ledger
	pricer *pricing.Pricer
	locks  *game.CorpLocks
	valCfg econ.ValuationConfig
	log    *slog.Logger
}

func NewMarket(st store.Store, led *ledger.Ledger, pr *pricing.Pricer, locks *game.CorpLocks, valCfg econ.ValuationConfig, logger *slog.Logger) *Market {
	if logger == nil {
		logger = slog.Default()
	}
	return &Market{store: st, ledger: led, pricer: pr, locks: locks, valCfg: valCfg, log: logger}
}

type TradeResult struct {
	Shares              int64 `json:"shares"`
	PricePerShareMicros int64 `json:"price_per_share_micros"`
	TotalMicros         int64 `json:"total_micros"`
	NewSharePriceMicros int64 `json:"new_share_price_micros"`
}

func (m *Market) Buy(ctx context.Context, corpID int64, userID string, shareCount int64) (TradeResult, error) {
	var out TradeResult
	if shareCount <= 0 {
		return out, fmt.Errorf("share count must be > 0")
	}
	m.locks.Lock(corpID)
	defer m.locks.Unlock(corpID)

	corp, err := m.store.GetCorporation(ctx, corpID)
	if err != nil {
		return out, err
	}
	if shareCount > corp.PublicShares {
		return out, fmt.Errorf("%w: float %d, requested %d", game.ErrInsufficientFloat, corp.PublicShares, shareCount)
	}
	price := corp.SharePriceMicros
	cost := price * shareCount

	if err := m.ledger.UserToCorp(ctx, corpID, userID, cost, "share_buy",
		fmt.Sprintf("buy %d shares of %s", shareCount, corp.Name)); err != nil {
		return out, err
	}
	if err := m.ledger.TransferShares(ctx, corpID, "", userID, shareCount); err != nil {
		return out, err
	}
	m.pricer.RecordTrade(corpID, price)

	newPrice, err := m.revalue(ctx, corpID)
	if err != nil {
		return out, err
	}
	return TradeResult{Shares: shareCount, PricePerShareMicros: price, TotalMicros: cost, NewSharePriceMicros: newPrice}, nil
}

func (m *Market) Sell(ctx context.Context, corpID int64, userID string, shareCount int64) (TradeResult, error) {
	var out TradeResult
	if shareCount <= 0 {
		return out, fmt.Errorf("share count must be > 0")
	}
	m.locks.Lock(corpID)
	defer m.locks.Unlock(corpID)

	corp, err := m.store.GetCorporation(ctx, corpID)
	if err != nil {
		return out, err
	}
	sh, ok, err := m.store.GetShareholder(ctx, corpID, userID)
	if err != nil {
		return out, err
	}
	if !ok || sh.Shares < shareCount {
		return out, fmt.Errorf("%w: holds %d, requested %d", game.ErrInsufficientHolding, sh.Shares, shareCount)
	}
	price := corp.SharePriceMicros
	proceeds := price * shareCount

	// Shares return to the float; the treasury pays out. Order matters: the
	// cash leg is checked first so a failed payout leaves holdings intact.
	if err := m.ledger.CorpToUser(ctx, corpID, userID, proceeds, "share_sell",
		fmt.Sprintf("sell %d shares of %s", shareCount, corp.Name)); err != nil {
		return out, err
	}
	if err := m.ledger.TransferShares(ctx, corpID, userID, "", shareCount); err != nil {
		return out, err
	}
	m.pricer.RecordTrade(corpID, price)

	newPrice, err := m.revalue(ctx, corpID)
	if err != nil {
		return out, err
	}
	return TradeResult{Shares: shareCount, PricePerShareMicros: price, TotalMicros: proceeds, NewSharePriceMicros: newPrice}, nil
}

// Issue mints new public shares, capped at 10% of the current total per call,
// and raises capital at the current price. Holder positions are untouched;
// dilution is purely proportional.
func (m *Market) Issue(ctx context.Context, corpID, shareCount int64) (TradeResult, error) {
	var out TradeResult
	if shareCount <= 0 {
		return out, fmt.Errorf("share count must be > 0")
	}
	m.locks.Lock(corpID)
	defer m.locks.Unlock(corpID)

	corp, err := m.store.GetCorporation(ctx, corpID)
	if err != nil {
		return out, err
	}
	if max := game.MaxIssuable(corp.TotalShares); shareCount > max {
		return out, fmt.Errorf("%w: requested %d, cap %d", game.ErrExceedsIssuanceCap, shareCount, max)
	}
	price := corp.SharePriceMicros
	raised := price * shareCount

	corp.TotalShares += shareCount
	corp.PublicShares += shareCount
	if err := m.store.PutCorporation(ctx, corp); err != nil {
		return out, err
	}
	if _, err := m.ledger.Credit(ctx, corpID, raised, "share_issue",
		fmt.Sprintf("issue %d shares of %s", shareCount, corp.Name)); err != nil {
		return out, err
	}

	newPrice, err := m.revalue(ctx, corpID)
	if err != nil {
		return out, err
	}
	return TradeResult{Shares: shareCount, PricePerShareMicros: price, TotalMicros: raised, NewSharePriceMicros: newPrice}, nil
}

// Split multiplies every position by ratio and divides the price by it.
func (m *Market) Split(ctx context.Context, corpID, ratio int64) (TradeResult, error) {
	var out TradeResult
	m.locks.Lock(corpID)
	defer m.locks.Unlock(corpID)

	corp, err := m.store.GetCorporation(ctx, corpID)
	if err != nil {
		return out, err
	}
	holders, err := m.store.Shareholders(ctx, corpID)
	if err != nil {
		return out, err
	}
	if err := ApplySplit(corp, holders, ratio); err != nil {
		return out, err
	}
	if err := m.store.PutCorporation(ctx, corp); err != nil {
		return out, err
	}
	if err := m.store.ReplaceShareholders(ctx, corpID, holders); err != nil {
		return out, err
	}
	m.pricer.RescaleTrades(corpID, ratio)

	newPrice, err := m.revalue(ctx, corpID)
	if err != nil {
		return out, err
	}
	return TradeResult{Shares: corp.TotalShares, PricePerShareMicros: corp.SharePriceMicros, NewSharePriceMicros: newPrice}, nil
}

// ApplySplit rewrites corp and holders in place. Integer arithmetic only:
// share counts multiply exactly, so the split can never create or destroy a
// fractional share.
func ApplySplit(corp *game.Corporation, holders []game.Shareholder, ratio int64) error {
	if ratio < 2 {
		return fmt.Errorf("split ratio must be >= 2")
	}
	corp.TotalShares *= ratio
	corp.PublicShares *= ratio
	corp.SharePriceMicros /= ratio
	if corp.SharePriceMicros < 1 {
		corp.SharePriceMicros = 1
	}
	for i := range holders {
		holders[i].Shares *= ratio
	}
	return nil
}

// Revalue recomputes and persists the share price; exposed for the turn
// processor's forced recalculation.
func (m *Market) Revalue(ctx context.Context, corpID int64) (int64, error) {
	m.locks.Lock(corpID)
	defer m.locks.Unlock(corpID)
	return m.revalue(ctx, corpID)
}

func (m *Market) revalue(ctx context.Context, corpID int64) (int64, error) {
	corp, err := m.store.GetCorporation(ctx, corpID)
	if err != nil {
		return 0, err
	}
	entries, err := m.store.CorpEntries(ctx, corpID)
	if err != nil {
		return 0, err
	}
	avg, ok := m.pricer.TradeAverage(corpID)
	v := econ.Recompute(m.valCfg, econ.ValuationInput{
		Corp:            corp,
		Entries:         entries,
		TradeAvgMicros:  avg,
		HasTradeHistory: ok,
	})
	corp.SharePriceMicros = v.PriceMicros
	if err := m.store.PutCorporation(ctx, corp); err != nil {
		return 0, err
	}
	return v.PriceMicros, nil
}

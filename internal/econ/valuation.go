package econ

import "github.com/Egg3901/corpgame-sub004/internal/game"

type ValuationConfig struct {
	BookWeight      float64
	TradeWeight     float64
	UnitAssetMicros int64 // book value carried per built unit
}

func DefaultValuationConfig() ValuationConfig {
	return ValuationConfig{
		BookWeight:      0.8,
		TradeWeight:     0.2,
		UnitAssetMicros: 50_000 * game.MicrosPerCredit,
	}
}

type ValuationInput struct {
	Corp            *game.Corporation
	Entries         []game.MarketEntry
	TradeAvgMicros  int64
	HasTradeHistory bool
}

type Valuation struct {
	PriceMicros        int64 `json:"price_micros"`
	BookPerShareMicros int64 `json:"book_per_share_micros"`
	// TradeWeighted is false when no trade history existed and book value
	// alone set the price. Surfaced so callers never mistake the fallback
	// for a blended quote.
	TradeWeighted bool `json:"trade_weighted"`
}

// Recompute derives a share price from book value and recent trades:
// price = bookWeight*bookValuePerShare + tradeWeight*tradeAverage. Pure and
// idempotent; writing the result back is the caller's business.
func Recompute(cfg ValuationConfig, in ValuationInput) Valuation {
	assets := in.Corp.CashMicros
	for i := range in.Entries {
		assets += in.Entries[i].TotalUnits() * cfg.UnitAssetMicros
	}
	shares := in.Corp.TotalShares
	if shares <= 0 {
		shares = 1
	}
	book := assets / shares

	out := Valuation{BookPerShareMicros: book}
	if !in.HasTradeHistory {
		out.PriceMicros = book
	} else {
		out.TradeWeighted = true
		out.PriceMicros = int64(cfg.BookWeight*float64(book) + cfg.TradeWeight*float64(in.TradeAvgMicros))
	}
	if out.PriceMicros < 1 {
		out.PriceMicros = 1
	}
	return out
}

package shares

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Egg3901/corpgame-sub004/internal/econ"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/ledger"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/store"
)

const cr = game.MicrosPerCredit

type harness struct {
	st     *store.Memory
	led    *ledger.Ledger
	market *Market
	corpID int64
}

func newHarness(t *testing.T) (context.Context, *harness) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	now := func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	led := ledger.New(st, nil, now)
	pr := pricing.New(pricing.DefaultConfig(), nil, now)
	market := NewMarket(st, led, pr, game.NewCorpLocks(), econ.DefaultValuationConfig(), nil)

	corp := &game.Corporation{
		Name:             "Testco",
		CashMicros:       1_000_000 * cr,
		TotalShares:      1_000_000,
		PublicShares:     900_000,
		SharePriceMicros: 1 * cr,
	}
	corpID, err := st.CreateCorporation(ctx, corp)
	require.NoError(t, err)
	require.NoError(t, st.PutShareholder(ctx, game.Shareholder{CorpID: corpID, UserID: "founder", Shares: 100_000}))
	require.NoError(t, st.PutUser(ctx, &game.User{ID: "founder", CashMicros: 100_000 * cr}))
	require.NoError(t, st.PutUser(ctx, &game.User{ID: "trader", CashMicros: 100_000 * cr}))
	return ctx, &harness{st: st, led: led, market: market, corpID: corpID}
}

func TestBuySellConservation(t *testing.T) {
	ctx, h := newHarness(t)

	res, err := h.market.Buy(ctx, h.corpID, "trader", 5_000)
	require.NoError(t, err)
	require.Equal(t, 1*cr, res.PricePerShareMicros)
	require.Equal(t, 5_000*cr, res.TotalMicros)
	require.NoError(t, h.led.CheckConservation(ctx, h.corpID))

	_, err = h.market.Sell(ctx, h.corpID, "trader", 2_000)
	require.NoError(t, err)
	require.NoError(t, h.led.CheckConservation(ctx, h.corpID))

	sh, ok, err := h.st.GetShareholder(ctx, h.corpID, "trader")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3_000), sh.Shares)

	corp, err := h.st.GetCorporation(ctx, h.corpID)
	require.NoError(t, err)
	require.Equal(t, int64(897_000), corp.PublicShares)
	require.Equal(t, int64(1_000_000), corp.TotalShares)
}

func TestBuyRejectsOverFloat(t *testing.T) {
	ctx, h := newHarness(t)
	_, err := h.market.Buy(ctx, h.corpID, "trader", 900_001)
	require.ErrorIs(t, err, game.ErrInsufficientFloat)
}

func TestBuyRejectsWithoutCash(t *testing.T) {
	ctx, h := newHarness(t)
	// trader has 100,000 credits, price is 1 credit per share.
	_, err := h.market.Buy(ctx, h.corpID, "trader", 100_001)
	require.ErrorIs(t, err, game.ErrInsufficientFunds)
	require.NoError(t, h.led.CheckConservation(ctx, h.corpID))
}

func TestSellRejectsOverHolding(t *testing.T) {
	ctx, h := newHarness(t)
	_, err := h.market.Sell(ctx, h.corpID, "trader", 1)
	require.ErrorIs(t, err, game.ErrInsufficientHolding)
}

func TestIssuanceCap(t *testing.T) {
	ctx, h := newHarness(t)

	_, err := h.market.Issue(ctx, h.corpID, 150_001)
	require.ErrorIs(t, err, game.ErrExceedsIssuanceCap)

	res, err := h.market.Issue(ctx, h.corpID, 100_000)
	require.NoError(t, err)
	require.Equal(t, 100_000*cr, res.TotalMicros)

	corp, err := h.st.GetCorporation(ctx, h.corpID)
	require.NoError(t, err)
	require.Equal(t, int64(1_100_000), corp.TotalShares)
	require.Equal(t, int64(1_000_000), corp.PublicShares)
	require.Equal(t, 1_100_000*cr, corp.CashMicros)
	require.NoError(t, h.led.CheckConservation(ctx, h.corpID))

	// Founder position is untouched; dilution is proportional only.
	sh, ok, err := h.st.GetShareholder(ctx, h.corpID, "founder")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100_000), sh.Shares)
}

func TestApplySplitExact(t *testing.T) {
	corp := &game.Corporation{TotalShares: 1_000, PublicShares: 600, SharePriceMicros: 10 * cr}
	holders := []game.Shareholder{{UserID: "a", Shares: 300}, {UserID: "b", Shares: 100}}

	require.NoError(t, ApplySplit(corp, holders, 2))
	require.Equal(t, int64(2_000), corp.TotalShares)
	require.Equal(t, int64(1_200), corp.PublicShares)
	require.Equal(t, 5*cr, corp.SharePriceMicros)
	require.Equal(t, int64(600), holders[0].Shares)
	require.Equal(t, int64(200), holders[1].Shares)

	require.Error(t, ApplySplit(corp, holders, 1))
	require.Error(t, ApplySplit(corp, holders, 0))
}

func TestApplySplitPriceFloor(t *testing.T) {
	corp := &game.Corporation{TotalShares: 100, PublicShares: 100, SharePriceMicros: 1}
	require.NoError(t, ApplySplit(corp, nil, 10))
	require.Equal(t, int64(1), corp.SharePriceMicros)
}

// A split must not change any holder's ownership fraction or the market cap
// implied by the book, within revaluation rounding.
func TestSplitInvariance(t *testing.T) {
	ctx, h := newHarness(t)

	before, err := h.st.GetCorporation(ctx, h.corpID)
	require.NoError(t, err)
	capBefore := before.SharePriceMicros * before.TotalShares

	res, err := h.market.Split(ctx, h.corpID, 4)
	require.NoError(t, err)
	require.Equal(t, int64(4_000_000), res.Shares)

	after, err := h.st.GetCorporation(ctx, h.corpID)
	require.NoError(t, err)
	require.Equal(t, int64(4_000_000), after.TotalShares)
	require.Equal(t, int64(3_600_000), after.PublicShares)
	require.NoError(t, h.led.CheckConservation(ctx, h.corpID))

	sh, ok, err := h.st.GetShareholder(ctx, h.corpID, "founder")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(400_000), sh.Shares)

	capAfter := after.SharePriceMicros * after.TotalShares
	require.InEpsilon(t, float64(capBefore), float64(capAfter), 0.01,
		"market cap should survive a split within rounding")
}

func TestRevalueUsesTradeHistory(t *testing.T) {
	ctx, h := newHarness(t)

	// Without trades the price is pure book value.
	p0, err := h.market.Revalue(ctx, h.corpID)
	require.NoError(t, err)
	require.Equal(t, 1*cr, p0) // 1,000,000 credits / 1,000,000 shares

	// A buy records a trade sample; the next valuation blends it in.
	_, err = h.market.Buy(ctx, h.corpID, "trader", 1_000)
	require.NoError(t, err)
	corp, err := h.st.GetCorporation(ctx, h.corpID)
	require.NoError(t, err)
	require.Positive(t, corp.SharePriceMicros)
}

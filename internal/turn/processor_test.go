package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Egg3901/corpgame-sub004/internal/catalog"
	"github.com/Egg3901/corpgame-sub004/internal/econ"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/ledger"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/shares"
	"github.com/Egg3901/corpgame-sub004/internal/store"
)

const cr = game.MicrosPerCredit

// One production unit: 1 Widget per hour at 500 credits labor. At a Widget
// price of 1500 the unit nets 1000/hr, or 96,000 per 96-hour quarter.
func turnCatalog() *catalog.Catalog {
	c := catalog.New("test")
	c.AddSector(catalog.Sector{
		Name:         "Widgets",
		Capabilities: []game.UnitType{game.UnitProduction},
		Produces:     "Widget",
	})
	c.AddFlow("Widgets", game.UnitProduction, catalog.UnitFlow{
		Outputs:     []catalog.FlowItem{{Name: "Widget", PerHour: 1.0}},
		LaborMicros: 500 * cr,
	})
	c.AddRegion(catalog.Region{Name: "Base", Multiplier: 1.0})
	return c
}

type harness struct {
	st     *store.Memory
	proc   *Processor
	corpID int64
}

func newHarness(t *testing.T, widgetPriceCr int64, mutate func(*game.Corporation)) (context.Context, *harness) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	now := func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	cat := turnCatalog()
	pr := pricing.New(pricing.DefaultConfig(), map[string]int64{"Widget": widgetPriceCr * cr}, now)
	led := ledger.New(st, nil, now)
	eng := econ.New(cat, pr)
	locks := game.NewCorpLocks()
	mkt := shares.NewMarket(st, led, pr, locks, econ.DefaultValuationConfig(), nil)
	proc := New(st, led, eng, pr, mkt, locks, DefaultConfig(), nil, now)

	corp := &game.Corporation{
		Name:             "Widgetco",
		Sector:           "Widgets",
		HQRegion:         "Base",
		CEOUserID:        "ceo",
		Board:            []string{"ceo"},
		BoardSize:        5,
		CashMicros:       100_000 * cr,
		TotalShares:      1_000,
		PublicShares:     0,
		SharePriceMicros: 1 * cr,
	}
	if mutate != nil {
		mutate(corp)
	}
	corpID, err := st.CreateCorporation(ctx, corp)
	require.NoError(t, err)
	require.NoError(t, st.PutShareholder(ctx, game.Shareholder{CorpID: corpID, UserID: "inv", Shares: 1_000}))
	require.NoError(t, st.PutUser(ctx, &game.User{ID: "ceo"}))
	require.NoError(t, st.PutUser(ctx, &game.User{ID: "inv"}))
	_, err = st.CreateEntry(ctx, &game.MarketEntry{
		CorpID: corpID,
		Region: "Base",
		Sector: "Widgets",
		Units:  map[game.UnitType]int64{game.UnitProduction: 1},
	})
	require.NoError(t, err)
	return ctx, &harness{st: st, proc: proc, corpID: corpID}
}

func (h *harness) corp(t *testing.T) *game.Corporation {
	t.Helper()
	c, err := h.st.GetCorporation(context.Background(), h.corpID)
	require.NoError(t, err)
	return c
}

func (h *harness) userCash(t *testing.T, id string) int64 {
	t.Helper()
	u, err := h.st.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.CashMicros
}

// Operating income of 96,000 with a 10% dividend pays exactly 9,600 to the
// sole shareholder.
func TestDividendScenario(t *testing.T) {
	ctx, h := newHarness(t, 1500, func(c *game.Corporation) {
		c.DividendPct = 10
	})

	rep, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rep.CorporationsProcessed)
	require.Equal(t, 96_000*cr, rep.TotalProfitMicros)
	require.Equal(t, 9_600*cr, rep.TotalDividendsMicros)

	require.Equal(t, 9_600*cr, h.userCash(t, "inv"))
	c := h.corp(t)
	require.Equal(t, (100_000+96_000-9_600)*cr, c.CashMicros)
	require.Equal(t, int64(1), c.LastProcessedPeriod)
}

func TestSamePeriodRerunSkips(t *testing.T) {
	ctx, h := newHarness(t, 1500, nil)

	_, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	cashAfterFirst := h.corp(t).CashMicros

	rep, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, rep.CorporationsProcessed)
	require.Equal(t, 1, rep.CorporationsSkipped)
	require.Equal(t, cashAfterFirst, h.corp(t).CashMicros)

	// The next period accrues again.
	rep, err = h.proc.Run(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, rep.CorporationsProcessed)
}

func TestDividendsNeedPositiveProfit(t *testing.T) {
	// Widget at 500 exactly covers labor: zero profit, zero dividend.
	ctx, h := newHarness(t, 500, func(c *game.Corporation) {
		c.DividendPct = 10
	})
	rep, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, rep.TotalDividendsMicros)
	require.Zero(t, h.userCash(t, "inv"))
}

func TestUncoverableLossLeavesCashAlone(t *testing.T) {
	// Widget at 100 loses 400/hr: a 38,400 quarterly loss against 1,000 cash.
	ctx, h := newHarness(t, 100, func(c *game.Corporation) {
		c.CashMicros = 1_000 * cr
	})
	rep, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, -38_400*cr, rep.TotalProfitMicros)

	c := h.corp(t)
	require.Equal(t, 1_000*cr, c.CashMicros, "cash never goes negative")
	require.Equal(t, int64(1), c.LastProcessedPeriod, "the period still completes")
}

func TestCoverableLossIsDebited(t *testing.T) {
	ctx, h := newHarness(t, 100, nil) // 100,000 cash covers the 38,400 loss
	_, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, (100_000-38_400)*cr, h.corp(t).CashMicros)
}

func TestSalaryPaid(t *testing.T) {
	ctx, h := newHarness(t, 1500, func(c *game.Corporation) {
		c.CEOSalaryMicros = 500 * cr
	})
	rep, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rep.CEOsPaid)
	require.Equal(t, 500*cr, rep.TotalPaidMicros)
	require.Equal(t, 500*cr, h.userCash(t, "ceo"))
}

func TestSalaryZeroedWhenTreasuryShort(t *testing.T) {
	ctx, h := newHarness(t, 500, func(c *game.Corporation) {
		c.CashMicros = 100 * cr
		c.CEOSalaryMicros = 1_000_000 * cr
	})
	rep, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, rep.CEOsPaid)
	require.Equal(t, 1, rep.SalariesZeroed)

	c := h.corp(t)
	require.Zero(t, c.CEOSalaryMicros, "an uncoverable salary is zeroed going forward")
	require.Equal(t, 100*cr, c.CashMicros)
	require.Zero(t, h.userCash(t, "ceo"))
}

func TestActionPointGrant(t *testing.T) {
	ctx, h := newHarness(t, 1500, nil)
	require.NoError(t, h.st.PutUser(ctx, &game.User{ID: "capped", ActionPoints: 29}))

	rep, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, rep.ActionsGranted)

	ceo, err := h.st.GetUser(ctx, "ceo")
	require.NoError(t, err)
	require.Equal(t, int64(5), ceo.ActionPoints, "CEOs get the bonus")
	inv, err := h.st.GetUser(ctx, "inv")
	require.NoError(t, err)
	require.Equal(t, int64(3), inv.ActionPoints)
	capped, err := h.st.GetUser(ctx, "capped")
	require.NoError(t, err)
	require.Equal(t, int64(30), capped.ActionPoints, "grants clamp at the cap")
}

func TestTurnMovesCommodityPrices(t *testing.T) {
	ctx, h := newHarness(t, 1500, nil)

	// The quarter adds 96 unit-hours of Widget supply with no demand, so the
	// scarcity curve pushes the price down from base.
	_, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Less(t, h.proc.pricer.Price("Widget"), 1500*cr)
}

// newWidgetProcessor builds a processor over an arbitrary store, for tests
// that inject store faults.
func newWidgetProcessor(st store.Store, cfg Config) *Processor {
	now := func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	cat := turnCatalog()
	pr := pricing.New(pricing.DefaultConfig(), map[string]int64{"Widget": 1500 * cr}, now)
	led := ledger.New(st, nil, now)
	eng := econ.New(cat, pr)
	locks := game.NewCorpLocks()
	mkt := shares.NewMarket(st, led, pr, locks, econ.DefaultValuationConfig(), nil)
	return New(st, led, eng, pr, mkt, locks, cfg, nil, now)
}

func seedWidgetCorp(t *testing.T, ctx context.Context, st store.Store, name string) int64 {
	t.Helper()
	id, err := st.CreateCorporation(ctx, &game.Corporation{
		Name: name, Sector: "Widgets", HQRegion: "Base",
		Board: []string{"ceo"}, BoardSize: 5,
		CashMicros: 100_000 * cr, TotalShares: 1_000, SharePriceMicros: 1 * cr,
	})
	require.NoError(t, err)
	require.NoError(t, st.PutShareholder(ctx, game.Shareholder{CorpID: id, UserID: "inv", Shares: 1_000}))
	require.NoError(t, st.PutUser(ctx, &game.User{ID: "inv"}))
	_, err = st.CreateEntry(ctx, &game.MarketEntry{
		CorpID: id, Region: "Base", Sector: "Widgets",
		Units: map[game.UnitType]int64{game.UnitProduction: 1},
	})
	require.NoError(t, err)
	return id
}

// faultyEntriesStore fails CorpEntries for one corporation while set.
type faultyEntriesStore struct {
	*store.Memory
	mu       sync.Mutex
	failCorp int64
}

func (s *faultyEntriesStore) setFail(id int64) {
	s.mu.Lock()
	s.failCorp = id
	s.mu.Unlock()
}

func (s *faultyEntriesStore) CorpEntries(ctx context.Context, corpID int64) ([]game.MarketEntry, error) {
	s.mu.Lock()
	fail := s.failCorp
	s.mu.Unlock()
	if corpID == fail {
		return nil, errors.New("connection reset by peer")
	}
	return s.Memory.CorpEntries(ctx, corpID)
}

func TestOneCorpFailureDoesNotAbortTurn(t *testing.T) {
	ctx := context.Background()
	st := &faultyEntriesStore{Memory: store.NewMemory()}
	proc := newWidgetProcessor(st, DefaultConfig())
	alpha := seedWidgetCorp(t, ctx, st, "Alpha")
	beta := seedWidgetCorp(t, ctx, st, "Beta")
	st.setFail(beta)

	rep, err := proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rep.CorporationsProcessed)
	require.Equal(t, 1, rep.CorporationsFailed)

	a, err := st.GetCorporation(ctx, alpha)
	require.NoError(t, err)
	require.Equal(t, int64(1), a.LastProcessedPeriod)
	require.Equal(t, (100_000+96_000)*cr, a.CashMicros)
	b, err := st.GetCorporation(ctx, beta)
	require.NoError(t, err)
	require.Zero(t, b.LastProcessedPeriod, "a failed step leaves no stamp")
	require.Equal(t, 100_000*cr, b.CashMicros)

	// The completed corporation's flows still reprice the market.
	require.Less(t, proc.pricer.Price("Widget"), 1500*cr)

	// The retry picks up exactly the corporation that failed.
	st.setFail(0)
	rep, err = proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rep.CorporationsProcessed)
	require.Equal(t, 1, rep.CorporationsSkipped)
	require.Zero(t, rep.CorporationsFailed)
	b, err = st.GetCorporation(ctx, beta)
	require.NoError(t, err)
	require.Equal(t, int64(1), b.LastProcessedPeriod)
	require.Equal(t, (100_000+96_000)*cr, b.CashMicros)
}

// hangingEntriesStore blocks CorpEntries for one corporation until the
// caller's context expires.
type hangingEntriesStore struct {
	*store.Memory
	hangCorp int64
}

func (s *hangingEntriesStore) CorpEntries(ctx context.Context, corpID int64) ([]game.MarketEntry, error) {
	if corpID == s.hangCorp {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Memory.CorpEntries(ctx, corpID)
}

func TestHungStoreCallHitsTimeout(t *testing.T) {
	ctx := context.Background()
	st := &hangingEntriesStore{Memory: store.NewMemory()}
	cfg := DefaultConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	proc := newWidgetProcessor(st, cfg)
	fast := seedWidgetCorp(t, ctx, st, "Fast")
	st.hangCorp = seedWidgetCorp(t, ctx, st, "Slow")

	rep, err := proc.Run(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rep.CorporationsProcessed)
	require.Equal(t, 1, rep.CorporationsFailed)

	f, err := st.GetCorporation(ctx, fast)
	require.NoError(t, err)
	require.Equal(t, int64(1), f.LastProcessedPeriod)
	s, err := st.GetCorporation(ctx, st.hangCorp)
	require.NoError(t, err)
	require.Zero(t, s.LastProcessedPeriod)
}

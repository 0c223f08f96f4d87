// Package turn drives the quarterly simulation step: action-point grants,
// per-corporation economic accrual, CEO salaries, dividends, and the single
// batched supply/demand update that reprices the commodity market.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Egg3901/corpgame-sub004/internal/econ"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/ledger"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/shares"
	"github.com/Egg3901/corpgame-sub004/internal/store"
)

type Config struct {
	GameHoursPerQuarter int64
	ActionPointsPerTurn int64
	CEOActionBonus      int64
	ActionPointsCap     int64
	FanOut              int
	// StoreTimeout bounds the persistence work of one corporation's step.
	StoreTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		GameHoursPerQuarter: 96,
		ActionPointsPerTurn: 3,
		CEOActionBonus:      2,
		ActionPointsCap:     30,
		FanOut:              8,
		StoreTimeout:        10 * time.Second,
	}
}

type Processor struct {
	store  store.Store
	ledger *ledger.Ledger
	econ   *econ.Engine
	pricer *pricing.Pricer
	market *shares.Market
	locks  *game.CorpLocks
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func New(st store.Store, led *ledger.Ledger, eng *econ.Engine, pr *pricing.Pricer, mkt *shares.Market, locks *game.CorpLocks, cfg Config, logger *slog.Logger, now func() time.Time) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.FanOut < 1 {
		cfg.FanOut = 1
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	return &Processor{store: st, ledger: led, econ: eng, pricer: pr, market: mkt, locks: locks, cfg: cfg, log: logger, now: now}
}

type Report struct {
	Period                int64 `json:"period"`
	ActionsGranted        int   `json:"actions_granted"`
	CEOsCount             int   `json:"ceos_count"`
	CorporationsProcessed int   `json:"corporations_processed"`
	CorporationsSkipped   int   `json:"corporations_skipped"`
	CorporationsFailed    int   `json:"corporations_failed"`
	TotalProfitMicros     int64 `json:"total_profit_micros"`
	CEOsPaid              int   `json:"ceos_paid"`
	TotalPaidMicros       int64 `json:"total_paid_micros"` // salaries actually paid
	SalariesZeroed        int   `json:"salaries_zeroed"`
	TotalDividendsMicros  int64 `json:"total_dividends_micros"`
}

// Run executes one turn for the given period. Re-running the same period is
// safe: corporations whose LastProcessedPeriod is at or past it are skipped,
// so a crashed run can simply be retried. One corporation's failure or
// timeout never aborts the others: it is counted in the report and its
// stamp is left untouched, so the retry picks it up alone while the merged
// deltas of the corporations that did complete still reach the pricer.
func (p *Processor) Run(ctx context.Context, period int64) (*Report, error) {
	rep := &Report{Period: period}

	corps, err := p.store.ListCorporations(ctx)
	if err != nil {
		return nil, err
	}
	ceoSet := make(map[string]bool, len(corps))
	for _, c := range corps {
		if c.CEOUserID != "" {
			ceoSet[c.CEOUserID] = true
		}
	}
	rep.CEOsCount = len(ceoSet)

	if err := p.grantActions(ctx, ceoSet, rep); err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		deltas = make(map[string]pricing.Delta)
	)
	g := &errgroup.Group{}
	g.SetLimit(p.cfg.FanOut)
	for _, c := range corps {
		corpID := c.ID
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
			defer cancel()
			local := make(map[string]pricing.Delta)
			res, err := p.processCorp(cctx, corpID, period, local)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.CorporationsFailed++
				p.log.Error("corporation turn step failed", "corp_id", corpID, "period", period, "err", err)
				return nil
			}
			if res.skipped {
				rep.CorporationsSkipped++
				return nil
			}
			rep.CorporationsProcessed++
			rep.TotalProfitMicros += res.profitMicros
			rep.TotalDividendsMicros += res.dividendMicros
			if res.salaryPaid {
				rep.CEOsPaid++
				rep.TotalPaidMicros += res.salaryMicros
			}
			if res.salaryZeroed {
				rep.SalariesZeroed++
			}
			for name, d := range local {
				agg := deltas[name]
				agg.Supply += d.Supply
				agg.Demand += d.Demand
				deltas[name] = agg
			}
			return nil
		})
	}
	// Goroutines report failures through the report, never the group; Wait
	// only synchronizes.
	_ = g.Wait()

	// One merged reprice plus one history sample per turn, regardless of how
	// many corporations contributed.
	p.pricer.ApplyDeltas(deltas)
	p.pricer.SamplePrices()

	for _, c := range corps {
		cctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
		_, err := p.market.Revalue(cctx, c.ID)
		cancel()
		if err != nil {
			p.log.Error("revalue failed", "corp_id", c.ID, "err", err)
		}
	}

	p.log.Info("turn complete", "period", period,
		"processed", rep.CorporationsProcessed, "skipped", rep.CorporationsSkipped,
		"failed", rep.CorporationsFailed,
		"profit_micros", rep.TotalProfitMicros, "dividends_micros", rep.TotalDividendsMicros)
	return rep, nil
}

type PriceChange struct {
	CorpID    int64 `json:"corp_id"`
	OldMicros int64 `json:"old_micros"`
	NewMicros int64 `json:"new_micros"`
}

type RecalcReport struct {
	CorporationsUpdated int           `json:"corporations_updated"`
	Changes             []PriceChange `json:"changes"`
}

// RecalcAll forces a fresh valuation for every corporation outside the normal
// turn cadence.
func (p *Processor) RecalcAll(ctx context.Context) (*RecalcReport, error) {
	corps, err := p.store.ListCorporations(ctx)
	if err != nil {
		return nil, err
	}
	rep := &RecalcReport{}
	for _, c := range corps {
		old := c.SharePriceMicros
		newPrice, err := p.market.Revalue(ctx, c.ID)
		if err != nil {
			p.log.Error("recalc failed", "corp_id", c.ID, "err", err)
			continue
		}
		rep.CorporationsUpdated++
		rep.Changes = append(rep.Changes, PriceChange{CorpID: c.ID, OldMicros: old, NewMicros: newPrice})
	}
	return rep, nil
}

func (p *Processor) grantActions(ctx context.Context, ceoSet map[string]bool, rep *Report) error {
	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		grant := p.cfg.ActionPointsPerTurn
		if ceoSet[u.ID] {
			grant += p.cfg.CEOActionBonus
		}
		u.ActionPoints += grant
		if u.ActionPoints > p.cfg.ActionPointsCap {
			u.ActionPoints = p.cfg.ActionPointsCap
		}
		if err := p.store.PutUser(ctx, u); err != nil {
			return err
		}
		rep.ActionsGranted++
	}
	return nil
}

type corpResult struct {
	skipped        bool
	profitMicros   int64
	dividendMicros int64
	salaryMicros   int64
	salaryPaid     bool
	salaryZeroed   bool
}

func (p *Processor) processCorp(ctx context.Context, corpID, period int64, deltas map[string]pricing.Delta) (corpResult, error) {
	p.locks.Lock(corpID)
	defer p.locks.Unlock(corpID)

	corp, err := p.store.GetCorporation(ctx, corpID)
	if err != nil {
		if errors.Is(err, game.ErrCorporationNotFound) {
			return corpResult{skipped: true}, nil
		}
		return corpResult{}, err
	}
	if corp.LastProcessedPeriod >= period {
		return corpResult{skipped: true}, nil
	}

	entries, err := p.store.CorpEntries(ctx, corpID)
	if err != nil {
		return corpResult{}, err
	}

	var revenue, cost int64
	for _, e := range entries {
		for ut, count := range e.Units {
			if count <= 0 {
				continue
			}
			h, err := p.econ.HourlyEconomics(e.Sector, ut, e.Region)
			if err != nil {
				p.log.Warn("entry skipped in accrual", "corp_id", corpID, "sector", e.Sector, "unit", ut, "err", err)
				continue
			}
			revenue += h.RevenueMicros * p.cfg.GameHoursPerQuarter * count
			cost += h.CostMicros * p.cfg.GameHoursPerQuarter * count

			// FlowDeltas yields one unit-hour; scale by the fleet-quarter.
			scratch := make(map[string]pricing.Delta)
			if err := p.econ.FlowDeltas(e.Sector, ut, e.Region, scratch); err != nil {
				return corpResult{}, err
			}
			scale := float64(count * p.cfg.GameHoursPerQuarter)
			for name, d := range scratch {
				agg := deltas[name]
				agg.Supply += d.Supply * scale
				agg.Demand += d.Demand * scale
				deltas[name] = agg
			}
		}
	}

	res := corpResult{profitMicros: revenue - cost}
	switch net := res.profitMicros; {
	case net > 0:
		if _, err := p.ledger.Credit(ctx, corpID, net, "operating_income",
			fmt.Sprintf("operating income for period %d", period)); err != nil {
			return corpResult{}, err
		}
	case net < 0:
		if _, err := p.ledger.Debit(ctx, corpID, -net, "operating_loss",
			fmt.Sprintf("operating loss for period %d", period)); err != nil {
			if !errors.Is(err, game.ErrInsufficientFunds) {
				return corpResult{}, err
			}
			// The treasury cannot cover the loss. Leave the balance alone and
			// flag it; negative cash is never written.
			p.log.Warn("operating loss exceeds treasury, not debited",
				"corp_id", corpID, "loss_micros", -net, "cash_micros", corp.CashMicros)
		}
	}

	if corp.CEOUserID != "" && corp.CEOSalaryMicros > 0 {
		err := p.ledger.CorpToUser(ctx, corpID, corp.CEOUserID, corp.CEOSalaryMicros,
			"ceo_salary", fmt.Sprintf("CEO salary for period %d", period))
		switch {
		case err == nil:
			res.salaryPaid = true
			res.salaryMicros = corp.CEOSalaryMicros
		case errors.Is(err, game.ErrInsufficientFunds):
			// Policy: a salary the treasury cannot cover is zeroed going
			// forward, never partially paid.
			res.salaryZeroed = true
			p.log.Info("ceo salary zeroed, treasury short", "corp_id", corpID, "salary_micros", corp.CEOSalaryMicros)
		default:
			return corpResult{}, err
		}
	}

	if res.profitMicros > 0 && corp.DividendPct > 0 {
		pool := int64(float64(res.profitMicros) * corp.DividendPct / 100)
		if pool > 0 {
			paid, err := p.ledger.PayoutProRata(ctx, corpID, pool, "dividend",
				fmt.Sprintf("%.1f%% dividend for period %d", corp.DividendPct, period))
			if err != nil {
				if !errors.Is(err, game.ErrInsufficientFunds) {
					return corpResult{}, err
				}
				p.log.Info("dividend skipped, treasury short", "corp_id", corpID, "pool_micros", pool)
			} else {
				res.dividendMicros = paid
			}
		}
	}

	// Reload: the ledger calls above rewrote the row.
	corp, err = p.store.GetCorporation(ctx, corpID)
	if err != nil {
		return corpResult{}, err
	}
	corp.LastProcessedPeriod = period
	if res.salaryZeroed {
		corp.CEOSalaryMicros = 0
	}
	if err := p.store.PutCorporation(ctx, corp); err != nil {
		return corpResult{}, err
	}
	if err := p.ledger.CheckConservation(ctx, corpID); err != nil {
		return corpResult{}, err
	}
	return res, nil
}

// Package pricing owns the global supply/demand aggregates and turns them
// into current prices. All mutation goes through the Pricer API so tests can
// run against fixed seed prices; there are no ambient globals.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

type Config struct {
	// Scarcity factor bounds applied to demand/supply.
	Floor   float64
	Ceiling float64
	// Price history retention and the trade window used by valuation.
	HistoryRetention time.Duration
	TradeWindow      time.Duration
	TradeMaxSamples  int
}

func DefaultConfig() Config {
	return Config{
		Floor:            0.5,
		Ceiling:          2.0,
		HistoryRetention: 7 * 24 * time.Hour,
		TradeWindow:      24 * time.Hour,
		TradeMaxSamples:  32,
	}
}

type Sample struct {
	At          time.Time `json:"at"`
	PriceMicros int64     `json:"price_micros"`
}

type Quote struct {
	Name        string  `json:"name"`
	BaseMicros  int64   `json:"base_micros"`
	PriceMicros int64   `json:"price_micros"`
	Supply      float64 `json:"supply"`
	Demand      float64 `json:"demand"`
	Scarcity    float64 `json:"scarcity"`
}

// Delta is a commutative supply/demand adjustment. Per-corporation turn work
// accumulates these locally and merges them with ApplyDeltas, so parallel
// processing never needs the pricer lock mid-flight.
type Delta struct {
	Supply float64
	Demand float64
}

type aggregate struct {
	baseMicros  int64
	priceMicros int64
	supply      float64
	demand      float64
	history     []Sample
}

type tradeSample struct {
	at          time.Time
	priceMicros int64
}

type Pricer struct {
	mu      sync.RWMutex
	cfg     Config
	now     func() time.Time
	entries map[string]*aggregate
	trades  map[int64][]tradeSample
}

// New seeds the pricer from the catalog's base prices. The name set is closed
// from here on: asking about an unknown name is a bug in the caller, not a
// runtime condition, and panics.
func New(cfg Config, basePrices map[string]int64, now func() time.Time) *Pricer {
	if now == nil {
		now = time.Now
	}
	p := &Pricer{
		cfg:     cfg,
		now:     now,
		entries: make(map[string]*aggregate, len(basePrices)),
		trades:  make(map[int64][]tradeSample),
	}
	for name, base := range basePrices {
		p.entries[name] = &aggregate{baseMicros: base, priceMicros: base}
	}
	return p
}

func (p *Pricer) Price(name string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entry(name).priceMicros
}

func (p *Pricer) RecordFlow(name string, supplyDelta, demandDelta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entry(name)
	e.supply += supplyDelta
	e.demand += demandDelta
	p.reprice(e)
}

// ApplyDeltas merges a batch of per-corporation deltas and reprices each
// touched name once.
func (p *Pricer) ApplyDeltas(deltas map[string]Delta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, d := range deltas {
		e := p.entry(name)
		e.supply += d.Supply
		e.demand += d.Demand
		p.reprice(e)
	}
}

// SamplePrices appends one history point per name and prunes expired ones.
func (p *Pricer) SamplePrices() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	cutoff := now.Add(-p.cfg.HistoryRetention)
	for _, e := range p.entries {
		e.history = append(e.history, Sample{At: now, PriceMicros: e.priceMicros})
		e.history = pruneSamples(e.history, cutoff)
	}
}

func (p *Pricer) History(name string) []Sample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.entry(name).history
	out := make([]Sample, len(h))
	copy(out, h)
	return out
}

func (p *Pricer) Snapshot() []Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Quote, 0, len(p.entries))
	for name, e := range p.entries {
		out = append(out, Quote{
			Name:        name,
			BaseMicros:  e.baseMicros,
			PriceMicros: e.priceMicros,
			Supply:      e.supply,
			Demand:      e.demand,
			Scarcity:    p.scarcity(e),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecordTrade stores an executed share-trade price for the corporation so
// valuation can compute a trade-weighted average.
func (p *Pricer) RecordTrade(corpID, priceMicros int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	samples := append(p.trades[corpID], tradeSample{at: now, priceMicros: priceMicros})
	cutoff := now.Add(-p.cfg.TradeWindow)
	for len(samples) > 0 && samples[0].at.Before(cutoff) {
		samples = samples[1:]
	}
	if max := p.cfg.TradeMaxSamples; max > 0 && len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	p.trades[corpID] = samples
}

// TradeAverage returns the average executed trade price inside the window.
// ok=false means no trade history exists; callers must branch on it rather
// than treat zero as a price.
func (p *Pricer) TradeAverage(corpID int64) (avgMicros int64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cutoff := p.now().Add(-p.cfg.TradeWindow)
	var sum, n int64
	for _, t := range p.trades[corpID] {
		if t.at.Before(cutoff) {
			continue
		}
		sum += t.priceMicros
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

// RescaleTrades divides stored trade prices after a stock split so the
// trade-weighted average stays in the post-split price basis.
func (p *Pricer) RescaleTrades(corpID, divisor int64) {
	if divisor <= 1 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.trades[corpID] {
		p.trades[corpID][i].priceMicros /= divisor
	}
}

func (p *Pricer) DropTrades(corpID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.trades, corpID)
}

func (p *Pricer) entry(name string) *aggregate {
	e, ok := p.entries[name]
	if !ok {
		panic(fmt.Sprintf("pricing: unknown resource/product %q (catalog is closed)", name))
	}
	return e
}

func (p *Pricer) reprice(e *aggregate) {
	e.priceMicros = int64(math.Round(float64(e.baseMicros) * p.scarcity(e)))
	if e.priceMicros < 1 {
		e.priceMicros = 1
	}
}

func (p *Pricer) scarcity(e *aggregate) float64 {
	const eps = 1e-9
	if e.supply <= eps && e.demand <= eps {
		return 1.0
	}
	if e.supply <= eps {
		return p.cfg.Ceiling
	}
	f := e.demand / e.supply
	if f < p.cfg.Floor {
		return p.cfg.Floor
	}
	if f > p.cfg.Ceiling {
		return p.cfg.Ceiling
	}
	return f
}

func pruneSamples(h []Sample, cutoff time.Time) []Sample {
	i := 0
	for i < len(h) && h[i].At.Before(cutoff) {
		i++
	}
	if i == 0 {
		return h
	}
	return append(h[:0:0], h[i:]...)
}

// Package catalog holds the versioned production-chain model: sectors, the
// resources and products that move between them, per unit-type flow rates and
// the per-sector balance rules. It is lookup-only; nothing mutates it after
// load, so it is safe to share across goroutines.
package catalog

import (
	"fmt"
	"math"
	"sort"

	"github.com/Egg3901/corpgame-sub004/internal/game"
)

type Sector struct {
	Name         string
	Capabilities []game.UnitType
	Produces     string   // product name, empty when the sector has no chain output
	Consumes     string   // resource name consumed by production units
	Extracts     []string // resources extraction units pull from the ground
	Demands      []string // products retail units sell through
}

func (s Sector) CanBuild(ut game.UnitType) bool {
	for _, c := range s.Capabilities {
		if c == ut {
			return true
		}
	}
	return false
}

type FlowItem struct {
	Name    string  // resource or product name
	PerHour float64 // quantity per unit-hour
}

// UnitFlow describes one unit's hourly economics inputs: what it consumes,
// what it emits, labor, and the flat fallback used when no chain applies.
type UnitFlow struct {
	Inputs            []FlowItem
	Outputs           []FlowItem
	LaborMicros       int64
	BaseRevenueMicros int64
	BaseCostMicros    int64
}

// Rule carries the per-sector overrides the balance team tunes: a wholesale
// discount on input cost, a minimum gross margin floor for retail/service
// units, and an optional consumption override on the chain input rate.
type Rule struct {
	WholesaleDiscount   float64 // 0.15 = inputs cost 15% less
	MinGrossMargin      float64 // 0.10 = revenue floored at cost * 1.10
	ConsumptionOverride float64 // multiplier on chain input quantities, 0 = none
}

type Region struct {
	Name       string
	Multiplier float64 // scales extraction revenue and total unit capacity
}

// Capacity is the max units a single market entry may hold in the region.
func (r Region) Capacity(base int64) int64 {
	return int64(math.Floor(float64(base) * r.Multiplier))
}

type Catalog struct {
	version    string
	sectors    map[string]Sector
	flows      map[flowKey]UnitFlow
	rules      map[string]Rule
	regions    map[string]Region
	names      map[string]bool // every resource and product the pricer must know
	basePrices map[string]int64
}

type flowKey struct {
	sector string
	unit   game.UnitType
}

func New(version string) *Catalog {
	return &Catalog{
		version:    version,
		sectors:    make(map[string]Sector),
		flows:      make(map[flowKey]UnitFlow),
		rules:      make(map[string]Rule),
		regions:    make(map[string]Region),
		names:      make(map[string]bool),
		basePrices: make(map[string]int64),
	}
}

func (c *Catalog) Version() string { return c.version }

func (c *Catalog) AddSector(s Sector) {
	c.sectors[s.Name] = s
	if s.Produces != "" {
		c.names[s.Produces] = true
	}
	if s.Consumes != "" {
		c.names[s.Consumes] = true
	}
	for _, n := range s.Extracts {
		c.names[n] = true
	}
	for _, n := range s.Demands {
		c.names[n] = true
	}
}

func (c *Catalog) AddFlow(sector string, unit game.UnitType, f UnitFlow) {
	c.flows[flowKey{sector, unit}] = f
	for _, it := range f.Inputs {
		c.names[it.Name] = true
	}
	for _, it := range f.Outputs {
		c.names[it.Name] = true
	}
}

func (c *Catalog) SetRule(sector string, r Rule) { c.rules[sector] = r }
func (c *Catalog) AddRegion(r Region)            { c.regions[r.Name] = r }

func (c *Catalog) SetBasePrice(name string, micros int64) {
	c.names[name] = true
	c.basePrices[name] = micros
}

// BasePrices seeds the market pricer. Every known trade name gets a price;
// names without an explicit one default to 100 credits.
func (c *Catalog) BasePrices() map[string]int64 {
	out := make(map[string]int64, len(c.names))
	for n := range c.names {
		if p, ok := c.basePrices[n]; ok {
			out[n] = p
		} else {
			out[n] = 100 * game.MicrosPerCredit
		}
	}
	return out
}

func (c *Catalog) Sector(name string) (Sector, error) {
	s, ok := c.sectors[name]
	if !ok {
		return Sector{}, fmt.Errorf("unknown sector %q", name)
	}
	return s, nil
}

func (c *Catalog) Flow(sector string, unit game.UnitType) (UnitFlow, bool) {
	f, ok := c.flows[flowKey{sector, unit}]
	return f, ok
}

// Rule returns the sector's override row; sectors without one get zeroes.
func (c *Catalog) Rule(sector string) Rule {
	return c.rules[sector]
}

func (c *Catalog) Region(name string) (Region, error) {
	r, ok := c.regions[name]
	if !ok {
		return Region{}, fmt.Errorf("unknown region %q", name)
	}
	return r, nil
}

func (c *Catalog) Sectors() []Sector {
	out := make([]Sector, 0, len(c.sectors))
	for _, s := range c.sectors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Regions() []Region {
	out := make([]Region, 0, len(c.regions))
	for _, r := range c.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TradeNames lists every resource/product name in the catalog, sorted. The
// pricer is seeded from this; a name outside it is a programming error.
func (c *Catalog) TradeNames() []string {
	out := make([]string, 0, len(c.names))
	for n := range c.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Knows(name string) bool { return c.names[name] }

// Package econ computes per-unit hourly economics and share valuations. It is
// pure: all market state comes in through the PriceSource and the inputs, so
// results are reproducible byte-for-byte for fixed prices.
package econ

import (
	"fmt"
	"math"

	"github.com/Egg3901/corpgame-sub004/internal/catalog"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
)

// PriceSource is the read side of the market pricer.
type PriceSource interface {
	Price(name string) int64
}

type Hourly struct {
	RevenueMicros int64 `json:"revenue_micros"`
	CostMicros    int64 `json:"cost_micros"`
}

func (h Hourly) NetMicros() int64 { return h.RevenueMicros - h.CostMicros }

type Engine struct {
	cat    *catalog.Catalog
	prices PriceSource
}

func New(cat *catalog.Catalog, prices PriceSource) *Engine {
	return &Engine{cat: cat, prices: prices}
}

// HourlyEconomics prices one unit-hour of (sector, unitType) in the region.
//
// The region multiplier scales extraction revenue only; retail, service and
// production base rates stay flat across regions. That asymmetry is a
// balance rule, not a bug.
func (e *Engine) HourlyEconomics(sector string, ut game.UnitType, region string) (Hourly, error) {
	sec, err := e.cat.Sector(sector)
	if err != nil {
		return Hourly{}, err
	}
	if !sec.CanBuild(ut) {
		return Hourly{}, fmt.Errorf("sector %q has no %s capability", sector, ut)
	}
	reg, err := e.cat.Region(region)
	if err != nil {
		return Hourly{}, err
	}
	flow, ok := e.cat.Flow(sector, ut)
	if !ok {
		return Hourly{}, fmt.Errorf("no unit flow configured for %s/%s", sector, ut)
	}
	rule := e.cat.Rule(sector)

	var revenue, cost float64
	cost = float64(flow.LaborMicros)

	if len(flow.Outputs) > 0 {
		for _, out := range flow.Outputs {
			revenue += out.PerHour * float64(e.prices.Price(out.Name))
		}
		if ut == game.UnitExtraction {
			revenue *= reg.Multiplier
		}
	} else {
		// Pure retail/service units have no chain output; use flat base rates.
		revenue = float64(flow.BaseRevenueMicros)
		cost += float64(flow.BaseCostMicros) * (1 - rule.WholesaleDiscount)
	}

	for _, in := range flow.Inputs {
		qty := in.PerHour
		if rule.ConsumptionOverride > 0 {
			qty *= rule.ConsumptionOverride
		}
		cost += qty * float64(e.prices.Price(in.Name)) * (1 - rule.WholesaleDiscount)
	}

	if (ut == game.UnitRetail || ut == game.UnitService) && rule.MinGrossMargin > 0 {
		if floor := cost * (1 + rule.MinGrossMargin); revenue < floor {
			revenue = floor
		}
	}

	return Hourly{
		RevenueMicros: int64(math.Round(revenue)),
		CostMicros:    int64(math.Round(cost)),
	}, nil
}

// FlowDeltas returns the supply/demand contribution of one unit-hour: outputs
// add supply, inputs add demand, and retail demand pulls on the sector's
// demanded products. Extraction output scales with the region multiplier so
// priced flows match credited revenue.
func (e *Engine) FlowDeltas(sector string, ut game.UnitType, region string, into map[string]pricing.Delta) error {
	sec, err := e.cat.Sector(sector)
	if err != nil {
		return err
	}
	reg, err := e.cat.Region(region)
	if err != nil {
		return err
	}
	flow, ok := e.cat.Flow(sector, ut)
	if !ok {
		return fmt.Errorf("no unit flow configured for %s/%s", sector, ut)
	}
	rule := e.cat.Rule(sector)

	for _, out := range flow.Outputs {
		qty := out.PerHour
		if ut == game.UnitExtraction {
			qty *= reg.Multiplier
		}
		d := into[out.Name]
		d.Supply += qty
		into[out.Name] = d
	}
	for _, in := range flow.Inputs {
		qty := in.PerHour
		if rule.ConsumptionOverride > 0 {
			qty *= rule.ConsumptionOverride
		}
		d := into[in.Name]
		d.Demand += qty
		into[in.Name] = d
	}
	if ut == game.UnitRetail {
		for _, name := range sec.Demands {
			d := into[name]
			d.Demand += 1
			into[name] = d
		}
	}
	return nil
}

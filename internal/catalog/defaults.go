package catalog

import "github.com/Egg3901/corpgame-sub004/internal/game"

const cr = game.MicrosPerCredit

// Default builds the launch catalog. Changing it is a versioned-config
// operation, never a player action.
func Default() *Catalog {
	c := New("v1")

	c.AddSector(Sector{
		Name:         "Agriculture",
		Capabilities: []game.UnitType{game.UnitProduction, game.UnitExtraction, game.UnitRetail},
		Produces:     "Food",
		Consumes:     "Grain",
		Extracts:     []string{"Grain"},
		Demands:      []string{"Food"},
	})
	c.AddSector(Sector{
		Name:         "Mining",
		Capabilities: []game.UnitType{game.UnitExtraction},
		Extracts:     []string{"Iron", "Coal"},
	})
	c.AddSector(Sector{
		Name:         "Energy",
		Capabilities: []game.UnitType{game.UnitExtraction, game.UnitProduction},
		Produces:     "Fuel",
		Consumes:     "Crude Oil",
		Extracts:     []string{"Crude Oil"},
	})
	c.AddSector(Sector{
		Name:         "Steelworks",
		Capabilities: []game.UnitType{game.UnitProduction},
		Produces:     "Steel",
		Consumes:     "Iron",
	})
	c.AddSector(Sector{
		Name:         "Automotive",
		Capabilities: []game.UnitType{game.UnitProduction, game.UnitRetail},
		Produces:     "Automobiles",
		Consumes:     "Steel",
		Demands:      []string{"Automobiles"},
	})
	c.AddSector(Sector{
		Name:         "Electronics",
		Capabilities: []game.UnitType{game.UnitProduction, game.UnitRetail},
		Produces:     "Electronics",
		Consumes:     "Steel",
		Demands:      []string{"Electronics"},
	})
	c.AddSector(Sector{
		Name:         "Defense",
		Capabilities: []game.UnitType{game.UnitProduction, game.UnitService},
		Produces:     "Munitions",
		Consumes:     "Steel",
	})
	c.AddSector(Sector{
		Name:         "Retail",
		Capabilities: []game.UnitType{game.UnitRetail, game.UnitService},
		Demands:      []string{"Food", "Electronics", "Automobiles"},
	})
	c.AddSector(Sector{
		Name:         "Hospitality",
		Capabilities: []game.UnitType{game.UnitService},
	})
	c.AddSector(Sector{
		Name:         "Logistics",
		Capabilities: []game.UnitType{game.UnitService},
	})

	// Extraction flows: no chain inputs, output priced at market.
	c.AddFlow("Agriculture", game.UnitExtraction, UnitFlow{
		Outputs:     []FlowItem{{Name: "Grain", PerHour: 2.0}},
		LaborMicros: 120 * cr,
	})
	c.AddFlow("Mining", game.UnitExtraction, UnitFlow{
		Outputs:     []FlowItem{{Name: "Iron", PerHour: 1.2}, {Name: "Coal", PerHour: 0.8}},
		LaborMicros: 260 * cr,
	})
	c.AddFlow("Energy", game.UnitExtraction, UnitFlow{
		Outputs:     []FlowItem{{Name: "Crude Oil", PerHour: 1.0}},
		LaborMicros: 300 * cr,
	})

	// Production flows.
	c.AddFlow("Agriculture", game.UnitProduction, UnitFlow{
		Inputs:      []FlowItem{{Name: "Grain", PerHour: 1.5}},
		Outputs:     []FlowItem{{Name: "Food", PerHour: 1.5}},
		LaborMicros: 150 * cr,
	})
	c.AddFlow("Energy", game.UnitProduction, UnitFlow{
		Inputs:      []FlowItem{{Name: "Crude Oil", PerHour: 1.2}},
		Outputs:     []FlowItem{{Name: "Fuel", PerHour: 1.1}},
		LaborMicros: 280 * cr,
	})
	c.AddFlow("Steelworks", game.UnitProduction, UnitFlow{
		Inputs:      []FlowItem{{Name: "Iron", PerHour: 1.4}, {Name: "Coal", PerHour: 0.6}},
		Outputs:     []FlowItem{{Name: "Steel", PerHour: 1.0}},
		LaborMicros: 320 * cr,
	})
	c.AddFlow("Automotive", game.UnitProduction, UnitFlow{
		Inputs:      []FlowItem{{Name: "Steel", PerHour: 0.8}},
		Outputs:     []FlowItem{{Name: "Automobiles", PerHour: 1.0}},
		LaborMicros: 400 * cr,
	})
	c.AddFlow("Electronics", game.UnitProduction, UnitFlow{
		Inputs:      []FlowItem{{Name: "Steel", PerHour: 0.3}},
		Outputs:     []FlowItem{{Name: "Electronics", PerHour: 0.9}},
		LaborMicros: 380 * cr,
	})
	c.AddFlow("Defense", game.UnitProduction, UnitFlow{
		Inputs:      []FlowItem{{Name: "Steel", PerHour: 1.0}},
		Outputs:     []FlowItem{{Name: "Munitions", PerHour: 0.7}},
		LaborMicros: 450 * cr,
	})

	// Retail/service flows fall back to flat base rates; the chain does not
	// price storefront throughput.
	c.AddFlow("Agriculture", game.UnitRetail, UnitFlow{
		LaborMicros:       100 * cr,
		BaseRevenueMicros: 600 * cr,
		BaseCostMicros:    420 * cr,
	})
	c.AddFlow("Automotive", game.UnitRetail, UnitFlow{
		LaborMicros:       140 * cr,
		BaseRevenueMicros: 900 * cr,
		BaseCostMicros:    660 * cr,
	})
	c.AddFlow("Electronics", game.UnitRetail, UnitFlow{
		LaborMicros:       140 * cr,
		BaseRevenueMicros: 850 * cr,
		BaseCostMicros:    600 * cr,
	})
	c.AddFlow("Retail", game.UnitRetail, UnitFlow{
		LaborMicros:       110 * cr,
		BaseRevenueMicros: 750 * cr,
		BaseCostMicros:    520 * cr,
	})
	c.AddFlow("Retail", game.UnitService, UnitFlow{
		LaborMicros:       100 * cr,
		BaseRevenueMicros: 500 * cr,
		BaseCostMicros:    360 * cr,
	})
	c.AddFlow("Defense", game.UnitService, UnitFlow{
		LaborMicros:       200 * cr,
		BaseRevenueMicros: 1_100 * cr,
		BaseCostMicros:    780 * cr,
	})
	c.AddFlow("Hospitality", game.UnitService, UnitFlow{
		LaborMicros:       90 * cr,
		BaseRevenueMicros: 480 * cr,
		BaseCostMicros:    340 * cr,
	})
	c.AddFlow("Logistics", game.UnitService, UnitFlow{
		LaborMicros:       130 * cr,
		BaseRevenueMicros: 640 * cr,
		BaseCostMicros:    470 * cr,
	})

	// Balance rule table. Table-driven on purpose: auditable in one place
	// instead of sector conditionals scattered through the economics code.
	c.SetRule("Retail", Rule{MinGrossMargin: 0.10})
	c.SetRule("Hospitality", Rule{MinGrossMargin: 0.08})
	c.SetRule("Logistics", Rule{MinGrossMargin: 0.08})
	c.SetRule("Defense", Rule{WholesaleDiscount: 0.20})
	c.SetRule("Automotive", Rule{WholesaleDiscount: 0.05, MinGrossMargin: 0.05})
	c.SetRule("Electronics", Rule{MinGrossMargin: 0.05})

	c.SetBasePrice("Grain", 40*cr)
	c.SetBasePrice("Iron", 120*cr)
	c.SetBasePrice("Coal", 80*cr)
	c.SetBasePrice("Crude Oil", 150*cr)
	c.SetBasePrice("Fuel", 220*cr)
	c.SetBasePrice("Steel", 300*cr)
	c.SetBasePrice("Food", 90*cr)
	c.SetBasePrice("Automobiles", 1_500*cr)
	c.SetBasePrice("Electronics", 1_100*cr)
	c.SetBasePrice("Munitions", 2_000*cr)

	c.AddRegion(Region{Name: "Northlands", Multiplier: 1.0})
	c.AddRegion(Region{Name: "Coastal Belt", Multiplier: 1.2})
	c.AddRegion(Region{Name: "Interior Plains", Multiplier: 0.9})
	c.AddRegion(Region{Name: "Frontier", Multiplier: 1.5})
	c.AddRegion(Region{Name: "Capital District", Multiplier: 1.1})

	return c
}

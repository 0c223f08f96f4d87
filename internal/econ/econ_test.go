package econ

import (
	"testing"

	"github.com/Egg3901/corpgame-sub004/internal/catalog"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
)

const cr = game.MicrosPerCredit

type fixedPrices map[string]int64

func (f fixedPrices) Price(name string) int64 { return f[name] }

func testCatalog() *catalog.Catalog {
	c := catalog.New("test")
	c.AddSector(catalog.Sector{
		Name:         "Widgets",
		Capabilities: []game.UnitType{game.UnitProduction, game.UnitRetail},
		Produces:     "Widget",
		Demands:      []string{"Widget"},
	})
	c.AddFlow("Widgets", game.UnitProduction, catalog.UnitFlow{
		Outputs:     []catalog.FlowItem{{Name: "Widget", PerHour: 1.0}},
		LaborMicros: 400 * cr,
	})
	c.AddFlow("Widgets", game.UnitRetail, catalog.UnitFlow{
		LaborMicros:       50 * cr,
		BaseRevenueMicros: 200 * cr,
		BaseCostMicros:    100 * cr,
	})
	c.AddSector(catalog.Sector{
		Name:         "Drilling",
		Capabilities: []game.UnitType{game.UnitExtraction},
		Extracts:     []string{"Ore"},
	})
	c.AddFlow("Drilling", game.UnitExtraction, catalog.UnitFlow{
		Outputs:     []catalog.FlowItem{{Name: "Ore", PerHour: 1.0}},
		LaborMicros: 100 * cr,
	})
	c.AddSector(catalog.Sector{
		Name:         "Corner Shops",
		Capabilities: []game.UnitType{game.UnitRetail},
	})
	c.AddFlow("Corner Shops", game.UnitRetail, catalog.UnitFlow{
		LaborMicros:       100 * cr,
		BaseRevenueMicros: 100 * cr,
		BaseCostMicros:    400 * cr,
	})
	c.SetRule("Corner Shops", catalog.Rule{MinGrossMargin: 0.10})
	c.AddRegion(catalog.Region{Name: "Base", Multiplier: 1.0})
	c.AddRegion(catalog.Region{Name: "Rich", Multiplier: 1.5})
	return c
}

// A production unit whose output prices at 1500/hr with 400/hr labor and no
// inputs must yield exactly 1500 revenue and 400 cost.
func TestProductionHourly(t *testing.T) {
	eng := New(testCatalog(), fixedPrices{"Widget": 1500 * cr})
	h, err := eng.HourlyEconomics("Widgets", game.UnitProduction, "Base")
	if err != nil {
		t.Fatalf("HourlyEconomics: %v", err)
	}
	if h.RevenueMicros != 1500*cr {
		t.Fatalf("revenue = %d, want %d", h.RevenueMicros, 1500*cr)
	}
	if h.CostMicros != 400*cr {
		t.Fatalf("cost = %d, want %d", h.CostMicros, 400*cr)
	}
	if h.NetMicros() != 1100*cr {
		t.Fatalf("net = %d, want %d", h.NetMicros(), 1100*cr)
	}
}

// The region multiplier scales extraction revenue only; production output in
// the same region is untouched.
func TestRegionMultiplierAsymmetry(t *testing.T) {
	eng := New(testCatalog(), fixedPrices{"Widget": 1500 * cr, "Ore": 200 * cr})

	base, err := eng.HourlyEconomics("Drilling", game.UnitExtraction, "Base")
	if err != nil {
		t.Fatalf("HourlyEconomics(Base): %v", err)
	}
	rich, err := eng.HourlyEconomics("Drilling", game.UnitExtraction, "Rich")
	if err != nil {
		t.Fatalf("HourlyEconomics(Rich): %v", err)
	}
	if base.RevenueMicros != 200*cr {
		t.Fatalf("base extraction revenue = %d, want %d", base.RevenueMicros, 200*cr)
	}
	if rich.RevenueMicros != 300*cr {
		t.Fatalf("rich extraction revenue = %d, want %d", rich.RevenueMicros, 300*cr)
	}

	prodBase, _ := eng.HourlyEconomics("Widgets", game.UnitProduction, "Base")
	prodRich, err := eng.HourlyEconomics("Widgets", game.UnitProduction, "Rich")
	if err != nil {
		t.Fatalf("HourlyEconomics(production, Rich): %v", err)
	}
	if prodBase.RevenueMicros != prodRich.RevenueMicros {
		t.Fatalf("production revenue differs by region: %d vs %d", prodBase.RevenueMicros, prodRich.RevenueMicros)
	}
}

func TestRetailMarginFloor(t *testing.T) {
	eng := New(testCatalog(), fixedPrices{})
	h, err := eng.HourlyEconomics("Corner Shops", game.UnitRetail, "Base")
	if err != nil {
		t.Fatalf("HourlyEconomics: %v", err)
	}
	// cost = 100 labor + 400 base; flat revenue 100 floors at cost * 1.10.
	if h.CostMicros != 500*cr {
		t.Fatalf("cost = %d, want %d", h.CostMicros, 500*cr)
	}
	if h.RevenueMicros != 550*cr {
		t.Fatalf("revenue = %d, want floored %d", h.RevenueMicros, 550*cr)
	}
}

func TestCapabilityChecked(t *testing.T) {
	eng := New(testCatalog(), fixedPrices{})
	if _, err := eng.HourlyEconomics("Drilling", game.UnitRetail, "Base"); err == nil {
		t.Fatal("expected error for unit type outside sector capabilities")
	}
	if _, err := eng.HourlyEconomics("Nonesuch", game.UnitRetail, "Base"); err == nil {
		t.Fatal("expected error for unknown sector")
	}
	if _, err := eng.HourlyEconomics("Widgets", game.UnitProduction, "Nowhere"); err == nil {
		t.Fatal("expected error for unknown region")
	}
}

func TestFlowDeltas(t *testing.T) {
	eng := New(testCatalog(), fixedPrices{})

	deltas := make(map[string]pricing.Delta)
	if err := eng.FlowDeltas("Widgets", game.UnitProduction, "Base", deltas); err != nil {
		t.Fatalf("FlowDeltas: %v", err)
	}
	if d := deltas["Widget"]; d.Supply != 1.0 || d.Demand != 0 {
		t.Fatalf("Widget delta = %+v, want supply 1.0", d)
	}

	deltas = make(map[string]pricing.Delta)
	if err := eng.FlowDeltas("Drilling", game.UnitExtraction, "Rich", deltas); err != nil {
		t.Fatalf("FlowDeltas: %v", err)
	}
	if d := deltas["Ore"]; d.Supply != 1.5 {
		t.Fatalf("Ore supply = %v, want extraction scaled to 1.5", d.Supply)
	}

	// Retail pulls demand on the sector's demanded products.
	deltas = make(map[string]pricing.Delta)
	if err := eng.FlowDeltas("Widgets", game.UnitRetail, "Base", deltas); err != nil {
		t.Fatalf("FlowDeltas: %v", err)
	}
	if d := deltas["Widget"]; d.Demand != 1 {
		t.Fatalf("Widget retail demand = %v, want 1", d.Demand)
	}
}

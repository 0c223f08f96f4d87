// Package corp handles corporation lifecycle and market presence: founding,
// dissolution, entering/abandoning (region, sector) markets and sizing the
// unit fleet inside an entry.
package corp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Egg3901/corpgame-sub004/internal/catalog"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/ledger"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/store"
)

type Config struct {
	// Base unit capacity per market entry; the region multiplier scales it.
	BaseRegionCapacity int64
	// Treasury cost per unit added through SetUnits.
	UnitBuildCostMicros int64
	DefaultBoardSize    int
	StartingCashMicros  int64
}

func DefaultConfig() Config {
	return Config{
		BaseRegionCapacity:  100,
		UnitBuildCostMicros: 5_000 * game.MicrosPerCredit,
		DefaultBoardSize:    5,
		StartingCashMicros:  1_000_000 * game.MicrosPerCredit,
	}
}

type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	pricer *pricing.Pricer
	cat    *catalog.Catalog
	locks  *game.CorpLocks
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func New(st store.Store, led *ledger.Ledger, pr *pricing.Pricer, cat *catalog.Catalog, locks *game.CorpLocks, cfg Config, logger *slog.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, ledger: led, pricer: pr, cat: cat, locks: locks, cfg: cfg, log: logger, now: now}
}

// EnsureUser creates the player record on first contact; subsequent calls
// only refresh the display name.
func (s *Service) EnsureUser(ctx context.Context, id, name string) (*game.User, error) {
	user, err := s.store.GetUser(ctx, id)
	switch {
	case err == nil:
		if name != "" && name != user.Name {
			user.Name = name
			if err := s.store.PutUser(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	case errors.Is(err, game.ErrUserNotFound):
		user = &game.User{ID: id, Name: name, CashMicros: s.cfg.StartingCashMicros}
		if err := s.store.PutUser(ctx, user); err != nil {
			return nil, err
		}
		s.log.Info("player registered", "user_id", id)
		return user, nil
	default:
		return nil, err
	}
}

// Found charters a corporation. The founder pays the chartering cost, which
// becomes the opening treasury; they take the founder stake and the CEO seat,
// and the rest of the float is public.
func (s *Service) Found(ctx context.Context, userID, name, sector, region string) (*game.Corporation, error) {
	if err := game.ValidateCorpName(name); err != nil {
		return nil, err
	}
	if _, err := s.cat.Sector(sector); err != nil {
		return nil, err
	}
	if _, err := s.cat.Region(region); err != nil {
		return nil, err
	}
	if err := s.ledger.DebitUser(ctx, userID, game.FoundingCostMicros, "founding",
		fmt.Sprintf("charter %s", name)); err != nil {
		return nil, err
	}

	corp := &game.Corporation{
		Name:         name,
		CEOUserID:    userID,
		Sector:       sector,
		HQRegion:     region,
		CreatedAt:    s.now(),
		TotalShares:  game.FoundingTotalShares,
		PublicShares: game.FoundingTotalShares - game.FoundingFounderShares,
		BoardSize:    s.cfg.DefaultBoardSize,
		Board:        []string{userID},
	}
	// Opening book value per share; trades move it from here.
	corp.SharePriceMicros = game.FoundingCostMicros / game.FoundingTotalShares
	if corp.SharePriceMicros < 1 {
		corp.SharePriceMicros = 1
	}
	id, err := s.store.CreateCorporation(ctx, corp)
	if err != nil {
		return nil, err
	}
	corp.ID = id
	if err := s.store.PutShareholder(ctx, game.Shareholder{
		CorpID: id, UserID: userID, Shares: game.FoundingFounderShares,
	}); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Credit(ctx, id, game.FoundingCostMicros, "founding",
		fmt.Sprintf("chartering capital for %s", name)); err != nil {
		return nil, err
	}
	s.log.Info("corporation founded", "corp_id", id, "name", name, "founder", userID, "sector", sector)
	corp, err = s.store.GetCorporation(ctx, id)
	if err != nil {
		return nil, err
	}
	return corp, nil
}

// Dissolve winds a corporation up: remaining treasury is distributed to
// shareholders pro rata, entries are closed, and the record is removed.
// CEO-only.
func (s *Service) Dissolve(ctx context.Context, corpID int64, callerID string) error {
	s.locks.Lock(corpID)
	defer s.locks.Unlock(corpID)

	corp, err := s.store.GetCorporation(ctx, corpID)
	if err != nil {
		return err
	}
	if corp.CEOUserID != callerID {
		return game.ErrNotCEO
	}
	if corp.CashMicros > 0 {
		if _, err := s.ledger.PayoutProRata(ctx, corpID, corp.CashMicros, "dissolution",
			fmt.Sprintf("dissolution of %s", corp.Name)); err != nil {
			return err
		}
	}
	entries, err := s.store.CorpEntries(ctx, corpID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.store.DeleteEntry(ctx, e.ID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteCorporation(ctx, corpID); err != nil {
		return err
	}
	s.pricer.DropTrades(corpID)
	s.log.Info("corporation dissolved", "corp_id", corpID, "name", corp.Name)
	return nil
}

// EnterMarket opens a (region, sector) presence. Costs the entry fee from the
// treasury plus one action point from the caller. CEO-only.
func (s *Service) EnterMarket(ctx context.Context, corpID int64, callerID, region, sector string) (*game.MarketEntry, error) {
	if _, err := s.cat.Sector(sector); err != nil {
		return nil, err
	}
	if _, err := s.cat.Region(region); err != nil {
		return nil, err
	}
	s.locks.Lock(corpID)
	defer s.locks.Unlock(corpID)

	corp, err := s.store.GetCorporation(ctx, corpID)
	if err != nil {
		return nil, err
	}
	if corp.CEOUserID != callerID {
		return nil, game.ErrNotCEO
	}
	if _, err := s.store.GetEntry(ctx, corpID, region, sector); err == nil {
		return nil, game.ErrDuplicateEntry
	} else if !errors.Is(err, game.ErrEntryNotFound) {
		return nil, err
	}
	if err := s.spendAction(ctx, callerID, 1); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Debit(ctx, corpID, game.EntryCostMicros, "market_entry",
		fmt.Sprintf("enter %s / %s", region, sector)); err != nil {
		return nil, err
	}
	entry := &game.MarketEntry{
		CorpID:    corpID,
		Region:    region,
		Sector:    sector,
		Units:     make(map[game.UnitType]int64),
		CreatedAt: s.now(),
	}
	id, err := s.store.CreateEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	entry.ID = id
	s.log.Info("market entered", "corp_id", corpID, "region", region, "sector", sector)
	return entry, nil
}

// AbandonMarket closes an entry. Sunk costs stay sunk; nothing is refunded.
func (s *Service) AbandonMarket(ctx context.Context, corpID int64, callerID, region, sector string) error {
	s.locks.Lock(corpID)
	defer s.locks.Unlock(corpID)

	corp, err := s.store.GetCorporation(ctx, corpID)
	if err != nil {
		return err
	}
	if corp.CEOUserID != callerID {
		return game.ErrNotCEO
	}
	entry, err := s.store.GetEntry(ctx, corpID, region, sector)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEntry(ctx, entry.ID); err != nil {
		return err
	}
	s.log.Info("market abandoned", "corp_id", corpID, "region", region, "sector", sector)
	return nil
}

// SetUnits replaces the unit counts of an entry. The sector must have the
// capability for every populated unit type, and the total fleet is bounded by
// the region's capacity. Added units are paid for from the treasury; removed
// units are written off without refund. Costs one action point.
func (s *Service) SetUnits(ctx context.Context, corpID int64, callerID, region, sector string, units map[game.UnitType]int64) (*game.MarketEntry, error) {
	sec, err := s.cat.Sector(sector)
	if err != nil {
		return nil, err
	}
	reg, err := s.cat.Region(region)
	if err != nil {
		return nil, err
	}
	var total int64
	for ut, n := range units {
		if n < 0 {
			return nil, fmt.Errorf("unit count for %s must be >= 0", ut)
		}
		if n > 0 && !sec.CanBuild(ut) {
			return nil, fmt.Errorf("sector %q has no %s capability", sector, ut)
		}
		total += n
	}
	if cap := reg.Capacity(s.cfg.BaseRegionCapacity); total > cap {
		return nil, fmt.Errorf("%w: %d units, capacity %d in %s", game.ErrRegionCapacityExceeded, total, cap, region)
	}

	s.locks.Lock(corpID)
	defer s.locks.Unlock(corpID)

	corp, err := s.store.GetCorporation(ctx, corpID)
	if err != nil {
		return nil, err
	}
	if corp.CEOUserID != callerID {
		return nil, game.ErrNotCEO
	}
	entry, err := s.store.GetEntry(ctx, corpID, region, sector)
	if err != nil {
		return nil, err
	}
	var added int64
	for ut, n := range units {
		if d := n - entry.Units[ut]; d > 0 {
			added += d
		}
	}
	if err := s.spendAction(ctx, callerID, 1); err != nil {
		return nil, err
	}
	if added > 0 {
		if _, err := s.ledger.Debit(ctx, corpID, added*s.cfg.UnitBuildCostMicros, "unit_build",
			fmt.Sprintf("build %d units in %s / %s", added, region, sector)); err != nil {
			return nil, err
		}
	}
	entry.Units = make(map[game.UnitType]int64, len(units))
	for ut, n := range units {
		if n > 0 {
			entry.Units[ut] = n
		}
	}
	if err := s.store.PutEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) spendAction(ctx context.Context, userID string, points int64) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.ActionPoints < points {
		return fmt.Errorf("%w: has %d, needs %d", game.ErrInsufficientActions, user.ActionPoints, points)
	}
	user.ActionPoints -= points
	return s.store.PutUser(ctx, user)
}

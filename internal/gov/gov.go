// Package gov runs the board-proposal lifecycle: creation, voting, early and
// expiry resolution, and the one-shot application of a passed payload to the
// corporation.
package gov

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Egg3901/corpgame-sub004/internal/catalog"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/ledger"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/shares"
	"github.com/Egg3901/corpgame-sub004/internal/store"
)

type Config struct {
	VotingPeriod            time.Duration
	SpecialDividendCooldown time.Duration
	MaxBoardSize            int
	// StoreTimeout bounds the persistence work of resolving one proposal.
	StoreTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		VotingPeriod:            48 * time.Hour,
		SpecialDividendCooldown: 96 * time.Hour,
		MaxBoardSize:            15,
		StoreTimeout:            10 * time.Second,
	}
}

type Engine struct {
	store  store.Store
	ledger *ledger.Ledger
	pricer *pricing.Pricer
	cat    *catalog.Catalog
	locks  *game.CorpLocks
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func New(st store.Store, led *ledger.Ledger, pr *pricing.Pricer, cat *catalog.Catalog, locks *game.CorpLocks, cfg Config, logger *slog.Logger, now func() time.Time) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	return &Engine{store: st, ledger: led, pricer: pr, cat: cat, locks: locks, cfg: cfg, log: logger, now: now}
}

// Resolution is reported for every resolved proposal.
type Resolution struct {
	ProposalID string         `json:"proposal_id"`
	Passed     bool           `json:"passed"`
	Tally      game.VoteTally `json:"tally"`
}

func (e *Engine) Propose(ctx context.Context, corpID int64, proposerID string, payload game.ProposalPayload) (*game.Proposal, error) {
	e.locks.Lock(corpID)
	defer e.locks.Unlock(corpID)

	corp, err := e.store.GetCorporation(ctx, corpID)
	if err != nil {
		return nil, err
	}
	if !corp.IsBoardMember(proposerID) {
		return nil, game.ErrNotBoardMember
	}
	if err := e.validate(corp, payload); err != nil {
		return nil, err
	}
	now := e.now()
	p := &game.Proposal{
		ID:         uuid.NewString(),
		CorpID:     corpID,
		ProposerID: proposerID,
		Kind:       payload.Kind(),
		Payload:    payload,
		Status:     game.ProposalActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.cfg.VotingPeriod),
	}
	if err := e.store.CreateProposal(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CastVote records one board member's vote. When the vote makes the outcome
// decisive the proposal resolves immediately and the resolution is returned;
// otherwise the returned resolution is nil.
func (e *Engine) CastVote(ctx context.Context, proposalID, voterID string, aye bool) (*Resolution, error) {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	e.locks.Lock(p.CorpID)
	defer e.locks.Unlock(p.CorpID)

	// Reload under the lock; resolution may have raced the first read.
	p, err = e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != game.ProposalActive {
		return nil, game.ErrProposalResolved
	}
	corp, err := e.store.GetCorporation(ctx, p.CorpID)
	if err != nil {
		return nil, err
	}
	if !corp.IsBoardMember(voterID) {
		return nil, game.ErrNotBoardMember
	}
	if err := e.store.AddVote(ctx, game.Vote{
		ProposalID: proposalID, VoterID: voterID, Aye: aye, At: e.now(),
	}); err != nil {
		return nil, err
	}

	tally, err := e.tally(ctx, p, corp)
	if err != nil {
		return nil, err
	}
	switch {
	case tally.Aye*2 > tally.Eligible:
		res, err := e.resolve(ctx, p, corp, tally, true)
		return res, err
	case tally.Nay*2 > tally.Eligible:
		res, err := e.resolve(ctx, p, corp, tally, false)
		return res, err
	}
	return nil, nil
}

// ResolveDue settles every active proposal whose expiry has passed: simple
// majority of votes cast, ties fail.
func (e *Engine) ResolveDue(ctx context.Context) ([]Resolution, error) {
	due, err := e.store.ActiveProposals(ctx, e.now())
	if err != nil {
		return nil, err
	}
	var out []Resolution
	for _, p := range due {
		// One proposal per timeout window; a hung store write for one
		// corporation's proposal must not stall the rest of the sweep.
		rctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		res, err := e.resolveExpired(rctx, p.ID)
		cancel()
		if err != nil {
			e.log.Error("proposal resolution failed", "proposal_id", p.ID, "err", err)
			continue
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (e *Engine) resolveExpired(ctx context.Context, proposalID string) (*Resolution, error) {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	e.locks.Lock(p.CorpID)
	defer e.locks.Unlock(p.CorpID)

	p, err = e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != game.ProposalActive {
		// Resolving twice is a no-op by design.
		return nil, nil
	}
	corp, err := e.store.GetCorporation(ctx, p.CorpID)
	if err != nil {
		return nil, err
	}
	tally, err := e.tally(ctx, p, corp)
	if err != nil {
		return nil, err
	}
	return e.resolve(ctx, p, corp, tally, tally.Aye > tally.Nay)
}

func (e *Engine) tally(ctx context.Context, p *game.Proposal, corp *game.Corporation) (game.VoteTally, error) {
	votes, err := e.store.Votes(ctx, p.ID)
	if err != nil {
		return game.VoteTally{}, err
	}
	t := game.VoteTally{Eligible: len(eligibleMembers(corp))}
	for _, v := range votes {
		if v.Aye {
			t.Aye++
		} else {
			t.Nay++
		}
	}
	return t, nil
}

// effects collects every store-visible change a payload causes beyond the
// corporation row itself. All of it commits in the one ResolveProposal write.
type effects struct {
	holders []game.Shareholder
	users   []*game.User
	txs     []game.Transaction
}

// resolve applies the payload (when passed) and marks the proposal in one
// atomic store write, so a passed-but-unapplied proposal is never observable.
// Nothing is persisted before that write. Callers hold the corporation lock.
func (e *Engine) resolve(ctx context.Context, p *game.Proposal, corp *game.Corporation, tally game.VoteTally, passed bool) (*Resolution, error) {
	p.ResolvedAt = e.now()
	var eff effects
	if passed {
		var err error
		eff, err = e.apply(ctx, p, corp)
		if err != nil {
			// A payload that cannot take effect fails the proposal with the
			// named condition rather than leaving it active.
			e.log.Warn("passed proposal could not be applied, marking failed",
				"proposal_id", p.ID, "kind", p.Kind, "err", err)
			passed = false
			corp = nil
			eff = effects{}
		}
	} else {
		corp = nil
	}
	if passed {
		p.Status = game.ProposalPassed
	} else {
		p.Status = game.ProposalFailed
	}
	if err := e.store.ResolveProposal(ctx, p, corp, eff.holders, eff.users, eff.txs); err != nil {
		return nil, err
	}
	e.log.Info("proposal resolved", "proposal_id", p.ID, "kind", p.Kind, "passed", passed,
		"aye", tally.Aye, "nay", tally.Nay, "eligible", tally.Eligible)
	return &Resolution{ProposalID: p.ID, Passed: passed, Tally: tally}, nil
}

// apply mutates corp in memory per the payload and returns the side effects
// that must commit with it: a replacement holder set when positions change
// (splits), user balances and transaction records when cash moves (special
// dividends). The switch is exhaustive over the payload union.
func (e *Engine) apply(ctx context.Context, p *game.Proposal, corp *game.Corporation) (effects, error) {
	switch v := p.Payload.(type) {
	case game.CEONomination:
		corp.CEOUserID = v.CandidateID
	case game.SectorChange:
		corp.Sector = v.Sector
	case game.HQChange:
		corp.HQRegion = v.Region
	case game.BoardSizeChange:
		corp.BoardSize = v.Size
		if len(corp.Board) > v.Size {
			corp.Board = corp.Board[:v.Size]
		}
	case game.MemberAppointment:
		if corp.IsBoardMember(v.UserID) {
			break
		}
		if len(corp.Board) >= corp.BoardSize {
			return effects{}, game.ErrBoardFull
		}
		corp.Board = append(corp.Board, v.UserID)
	case game.SalaryChange:
		corp.CEOSalaryMicros = v.SalaryMicros
	case game.DividendChange:
		corp.DividendPct = v.Percent
	case game.SpecialDividend:
		return e.applySpecialDividend(ctx, p, corp, v)
	case game.StockSplit:
		holders, err := e.store.Shareholders(ctx, corp.ID)
		if err != nil {
			return effects{}, err
		}
		if err := shares.ApplySplit(corp, holders, v.Ratio); err != nil {
			return effects{}, err
		}
		e.pricer.RescaleTrades(corp.ID, v.Ratio)
		return effects{holders: holders}, nil
	case game.FocusChange:
		corp.Focus = v.Focus
	default:
		return effects{}, fmt.Errorf("no apply handler for proposal kind %q", p.Kind)
	}
	return effects{}, nil
}

// applySpecialDividend plans the payout without persisting it; the cash
// movement, the cooldown stamp and the resolved status all land in the same
// ResolveProposal write, so a failed write pays nothing and leaves the
// proposal active for a clean retry.
func (e *Engine) applySpecialDividend(ctx context.Context, p *game.Proposal, corp *game.Corporation, v game.SpecialDividend) (effects, error) {
	now := e.now()
	if !corp.LastSpecialDividendAt.IsZero() && now.Sub(corp.LastSpecialDividendAt) < e.cfg.SpecialDividendCooldown {
		return effects{}, fmt.Errorf("%w: last paid %s", game.ErrCooldownActive, corp.LastSpecialDividendAt.Format(time.RFC3339))
	}
	pool := int64(float64(corp.CashMicros) * v.Percent / 100)
	if pool <= 0 {
		return effects{}, fmt.Errorf("special dividend pool is zero")
	}
	plan, err := e.ledger.PlanProRata(ctx, corp, pool, "special_dividend",
		fmt.Sprintf("special dividend %.1f%% (proposal %s)", v.Percent, p.ID))
	if err != nil {
		return effects{}, err
	}
	corp.LastSpecialDividendAt = now
	corp.LastSpecialDividendMicros = plan.PaidMicros
	return effects{users: plan.Users, txs: plan.Transactions}, nil
}

func (e *Engine) validate(corp *game.Corporation, payload game.ProposalPayload) error {
	switch v := payload.(type) {
	case game.CEONomination:
		if v.CandidateID == "" {
			return fmt.Errorf("ceo nomination requires a candidate")
		}
	case game.SectorChange:
		if _, err := e.cat.Sector(v.Sector); err != nil {
			return err
		}
	case game.HQChange:
		if _, err := e.cat.Region(v.Region); err != nil {
			return err
		}
	case game.BoardSizeChange:
		if v.Size < 1 || v.Size > e.cfg.MaxBoardSize {
			return fmt.Errorf("board size must be 1..%d", e.cfg.MaxBoardSize)
		}
	case game.MemberAppointment:
		if v.UserID == "" {
			return fmt.Errorf("member appointment requires a user")
		}
		if len(corp.Board) >= corp.BoardSize {
			return game.ErrBoardFull
		}
	case game.SalaryChange:
		if v.SalaryMicros < 0 {
			return fmt.Errorf("salary must be >= 0")
		}
	case game.DividendChange:
		if v.Percent < 0 || v.Percent > 100 {
			return fmt.Errorf("dividend percent must be 0..100")
		}
	case game.SpecialDividend:
		if v.Percent <= 0 || v.Percent > 100 {
			return fmt.Errorf("special dividend percent must be in (0,100]")
		}
	case game.StockSplit:
		if v.Ratio < 2 || v.Ratio > 100 {
			return fmt.Errorf("split ratio must be 2..100")
		}
	case game.FocusChange:
		if v.Focus == "" || len(v.Focus) > 48 {
			return fmt.Errorf("focus must be 1..48 chars")
		}
	default:
		return fmt.Errorf("unknown proposal payload %T", payload)
	}
	return nil
}

// eligibleMembers is the distinct voting set: board seats plus the CEO.
func eligibleMembers(corp *game.Corporation) []string {
	seen := make(map[string]bool, len(corp.Board)+1)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(corp.CEOUserID)
	for _, id := range corp.Board {
		add(id)
	}
	return out
}

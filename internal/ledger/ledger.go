// Package ledger is the only path through which cash and shares move. Every
// mutation writes exactly one Transaction record; a debit that would drive a
// balance negative fails outright instead of clamping.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/store"
)

type Ledger struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

func New(st store.Store, logger *slog.Logger, now func() time.Time) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: st, log: logger, now: now}
}

// Callers hold the corporation lock around every method here; the ledger
// itself does read-mutate-write against the store.

func (l *Ledger) Credit(ctx context.Context, corpID, amount int64, txType, desc string) (*game.Corporation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be > 0")
	}
	corp, err := l.store.GetCorporation(ctx, corpID)
	if err != nil {
		return nil, err
	}
	corp.CashMicros += amount
	if err := l.store.PutCorporation(ctx, corp); err != nil {
		return nil, err
	}
	if err := l.append(ctx, game.Transaction{
		Type: txType, AmountMicros: amount, CorpID: corpID, Description: desc,
	}); err != nil {
		return nil, err
	}
	return corp, nil
}

func (l *Ledger) Debit(ctx context.Context, corpID, amount int64, txType, desc string) (*game.Corporation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be > 0")
	}
	corp, err := l.store.GetCorporation(ctx, corpID)
	if err != nil {
		return nil, err
	}
	if corp.CashMicros < amount {
		return nil, fmt.Errorf("%w: corp %d has %d, needs %d", game.ErrInsufficientFunds, corpID, corp.CashMicros, amount)
	}
	corp.CashMicros -= amount
	if err := l.store.PutCorporation(ctx, corp); err != nil {
		return nil, err
	}
	if err := l.append(ctx, game.Transaction{
		Type: txType, AmountMicros: -amount, CorpID: corpID, Description: desc,
	}); err != nil {
		return nil, err
	}
	return corp, nil
}

// CorpToUser moves cash from a corporation to a user: one movement, one record.
func (l *Ledger) CorpToUser(ctx context.Context, corpID int64, userID string, amount int64, txType, desc string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be > 0")
	}
	corp, err := l.store.GetCorporation(ctx, corpID)
	if err != nil {
		return err
	}
	if corp.CashMicros < amount {
		return fmt.Errorf("%w: corp %d has %d, needs %d", game.ErrInsufficientFunds, corpID, corp.CashMicros, amount)
	}
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	corp.CashMicros -= amount
	user.CashMicros += amount
	if err := l.store.PutCorporation(ctx, corp); err != nil {
		return err
	}
	if err := l.store.PutUser(ctx, user); err != nil {
		return err
	}
	return l.append(ctx, game.Transaction{
		Type: txType, AmountMicros: amount, CorpID: corpID, ToUserID: userID, Description: desc,
	})
}

func (l *Ledger) UserToCorp(ctx context.Context, corpID int64, userID string, amount int64, txType, desc string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be > 0")
	}
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.CashMicros < amount {
		return fmt.Errorf("%w: user %s has %d, needs %d", game.ErrInsufficientFunds, userID, user.CashMicros, amount)
	}
	corp, err := l.store.GetCorporation(ctx, corpID)
	if err != nil {
		return err
	}
	user.CashMicros -= amount
	corp.CashMicros += amount
	if err := l.store.PutUser(ctx, user); err != nil {
		return err
	}
	if err := l.store.PutCorporation(ctx, corp); err != nil {
		return err
	}
	return l.append(ctx, game.Transaction{
		Type: txType, AmountMicros: amount, CorpID: corpID, FromUserID: userID, Description: desc,
	})
}

func (l *Ledger) DebitUser(ctx context.Context, userID string, amount int64, txType, desc string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be > 0")
	}
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.CashMicros < amount {
		return fmt.Errorf("%w: user %s has %d, needs %d", game.ErrInsufficientFunds, userID, user.CashMicros, amount)
	}
	user.CashMicros -= amount
	if err := l.store.PutUser(ctx, user); err != nil {
		return err
	}
	return l.append(ctx, game.Transaction{
		Type: txType, AmountMicros: -amount, FromUserID: userID, Description: desc,
	})
}

// TransferShares moves shares between holders; an empty user id on either
// side is the public float. Cash is untouched; pair with a cash method when
// the move is a trade.
func (l *Ledger) TransferShares(ctx context.Context, corpID int64, fromUser, toUser string, count int64) error {
	if count <= 0 {
		return fmt.Errorf("share count must be > 0")
	}
	corp, err := l.store.GetCorporation(ctx, corpID)
	if err != nil {
		return err
	}
	if fromUser == "" {
		if corp.PublicShares < count {
			return fmt.Errorf("%w: float %d, requested %d", game.ErrInsufficientFloat, corp.PublicShares, count)
		}
		corp.PublicShares -= count
	} else {
		sh, ok, err := l.store.GetShareholder(ctx, corpID, fromUser)
		if err != nil {
			return err
		}
		if !ok || sh.Shares < count {
			return fmt.Errorf("%w: user %s holds %d, requested %d", game.ErrInsufficientHolding, fromUser, sh.Shares, count)
		}
		sh.Shares -= count
		if err := l.store.PutShareholder(ctx, sh); err != nil {
			return err
		}
	}
	if toUser == "" {
		corp.PublicShares += count
	} else {
		sh, _, err := l.store.GetShareholder(ctx, corpID, toUser)
		if err != nil {
			return err
		}
		sh.Shares += count
		if err := l.store.PutShareholder(ctx, sh); err != nil {
			return err
		}
	}
	return l.store.PutCorporation(ctx, corp)
}

// PayoutProRata distributes pool among the corporation's shareholders by
// share count. Integer division leaves any remainder with the corporation.
// Returns the amount actually paid.
func (l *Ledger) PayoutProRata(ctx context.Context, corpID, pool int64, txType, desc string) (int64, error) {
	if pool <= 0 {
		return 0, fmt.Errorf("payout pool must be > 0")
	}
	corp, err := l.store.GetCorporation(ctx, corpID)
	if err != nil {
		return 0, err
	}
	if corp.CashMicros < pool {
		return 0, fmt.Errorf("%w: corp %d has %d, pool %d", game.ErrInsufficientFunds, corpID, corp.CashMicros, pool)
	}
	holders, err := l.store.Shareholders(ctx, corpID)
	if err != nil {
		return 0, err
	}
	var held int64
	for _, h := range holders {
		held += h.Shares
	}
	if held == 0 {
		return 0, nil
	}
	var paid int64
	for _, h := range holders {
		cut := pool * h.Shares / held
		if cut <= 0 {
			continue
		}
		user, err := l.store.GetUser(ctx, h.UserID)
		if err != nil {
			return paid, err
		}
		user.CashMicros += cut
		if err := l.store.PutUser(ctx, user); err != nil {
			return paid, err
		}
		if err := l.append(ctx, game.Transaction{
			Type: txType, AmountMicros: cut, CorpID: corpID, ToUserID: h.UserID, Description: desc,
		}); err != nil {
			return paid, err
		}
		paid += cut
	}
	corp.CashMicros -= paid
	if err := l.store.PutCorporation(ctx, corp); err != nil {
		return paid, err
	}
	return paid, nil
}

// PayoutPlan is a computed pro-rata distribution that has not been applied
// yet. Callers commit it through a store write that also records whatever
// triggered the payout, so the two can never be observed apart.
type PayoutPlan struct {
	PaidMicros   int64
	Users        []*game.User
	Transactions []game.Transaction
}

// PlanProRata computes the distribution PayoutProRata would make, without
// persisting anything. corp's cash is reduced in memory by the amount paid;
// the returned user rows carry their updated balances.
func (l *Ledger) PlanProRata(ctx context.Context, corp *game.Corporation, pool int64, txType, desc string) (PayoutPlan, error) {
	var plan PayoutPlan
	if pool <= 0 {
		return plan, fmt.Errorf("payout pool must be > 0")
	}
	if corp.CashMicros < pool {
		return plan, fmt.Errorf("%w: corp %d has %d, pool %d", game.ErrInsufficientFunds, corp.ID, corp.CashMicros, pool)
	}
	holders, err := l.store.Shareholders(ctx, corp.ID)
	if err != nil {
		return plan, err
	}
	var held int64
	for _, h := range holders {
		held += h.Shares
	}
	if held == 0 {
		return plan, nil
	}
	for _, h := range holders {
		cut := pool * h.Shares / held
		if cut <= 0 {
			continue
		}
		user, err := l.store.GetUser(ctx, h.UserID)
		if err != nil {
			return PayoutPlan{}, err
		}
		user.CashMicros += cut
		plan.Users = append(plan.Users, user)
		plan.Transactions = append(plan.Transactions, game.Transaction{
			ID: uuid.NewString(), Type: txType, AmountMicros: cut,
			CorpID: corp.ID, ToUserID: h.UserID, Description: desc, At: l.now(),
		})
		plan.PaidMicros += cut
	}
	corp.CashMicros -= plan.PaidMicros
	return plan, nil
}

// CheckConservation verifies total_shares == held + public. Drift is a
// data-integrity signal: logged and returned, never silently repaired.
func (l *Ledger) CheckConservation(ctx context.Context, corpID int64) error {
	corp, err := l.store.GetCorporation(ctx, corpID)
	if err != nil {
		return err
	}
	holders, err := l.store.Shareholders(ctx, corpID)
	if err != nil {
		return err
	}
	var held int64
	for _, h := range holders {
		held += h.Shares
	}
	if held+corp.PublicShares != corp.TotalShares {
		l.log.Error("share count drift detected",
			"corp_id", corpID, "total", corp.TotalShares, "held", held, "public", corp.PublicShares)
		return fmt.Errorf("%w: corp %d shares total=%d held=%d public=%d",
			game.ErrIntegrity, corpID, corp.TotalShares, held, corp.PublicShares)
	}
	return nil
}

func (l *Ledger) append(ctx context.Context, t game.Transaction) error {
	t.ID = uuid.NewString()
	t.At = l.now()
	return l.store.AppendTransaction(ctx, t)
}

// Package store abstracts persistence for the simulation core. Two
// implementations exist: Postgres (pgx) for production and an in-memory store
// for tests and ephemeral runs. The contract callers rely on: reads return
// copies, single-entity writes are atomic, and ResolveProposal commits the
// proposal status together with the corporation mutation it caused.
package store

import (
	"context"
	"time"

	"github.com/Egg3901/corpgame-sub004/internal/game"
)

type Store interface {
	CreateCorporation(ctx context.Context, c *game.Corporation) (int64, error)
	GetCorporation(ctx context.Context, id int64) (*game.Corporation, error)
	PutCorporation(ctx context.Context, c *game.Corporation) error
	DeleteCorporation(ctx context.Context, id int64) error
	ListCorporations(ctx context.Context) ([]*game.Corporation, error)

	Shareholders(ctx context.Context, corpID int64) ([]game.Shareholder, error)
	GetShareholder(ctx context.Context, corpID int64, userID string) (game.Shareholder, bool, error)
	// PutShareholder upserts; a zero share count removes the row.
	PutShareholder(ctx context.Context, sh game.Shareholder) error
	// ReplaceShareholders swaps the full holder set in one atomic write
	// (stock splits rewrite every position).
	ReplaceShareholders(ctx context.Context, corpID int64, rows []game.Shareholder) error

	GetUser(ctx context.Context, id string) (*game.User, error)
	PutUser(ctx context.Context, u *game.User) error
	ListUsers(ctx context.Context) ([]*game.User, error)

	CreateEntry(ctx context.Context, e *game.MarketEntry) (int64, error)
	GetEntry(ctx context.Context, corpID int64, region, sector string) (*game.MarketEntry, error)
	PutEntry(ctx context.Context, e *game.MarketEntry) error
	DeleteEntry(ctx context.Context, id int64) error
	CorpEntries(ctx context.Context, corpID int64) ([]game.MarketEntry, error)

	CreateProposal(ctx context.Context, p *game.Proposal) error
	GetProposal(ctx context.Context, id string) (*game.Proposal, error)
	ListProposals(ctx context.Context, corpID int64) ([]*game.Proposal, error)
	ActiveProposals(ctx context.Context, asOf time.Time) ([]*game.Proposal, error)
	// ResolveProposal atomically writes the resolved proposal plus every
	// effect its payload caused: the mutated corporation, optionally
	// rewritten holders (splits), updated user rows and transaction records
	// (special dividend payouts). One write or none, so a crash can never
	// leave a proposal applied but unmarked or marked but unapplied.
	ResolveProposal(ctx context.Context, p *game.Proposal, corp *game.Corporation, holders []game.Shareholder, users []*game.User, txs []game.Transaction) error

	AddVote(ctx context.Context, v game.Vote) error // game.ErrAlreadyVoted on re-vote
	Votes(ctx context.Context, proposalID string) ([]game.Vote, error)

	AppendTransaction(ctx context.Context, t game.Transaction) error
	Transactions(ctx context.Context, corpID int64, limit int) ([]game.Transaction, error)
}

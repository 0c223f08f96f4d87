package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Egg3901/corpgame-sub004/internal/game"
)

func seedCorp(t *testing.T, m *Memory) int64 {
	t.Helper()
	id, err := m.CreateCorporation(context.Background(), &game.Corporation{
		Name:  "Testco",
		Board: []string{"ceo"},
	})
	require.NoError(t, err)
	return id
}

func TestCorporationCloneIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := seedCorp(t, m)

	a, err := m.GetCorporation(ctx, id)
	require.NoError(t, err)
	a.Name = "Mutated"
	a.Board[0] = "mallory"

	b, err := m.GetCorporation(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Testco", b.Name, "reads must not alias stored state")
	require.Equal(t, "ceo", b.Board[0])
}

func TestEntryUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := seedCorp(t, m)

	_, err := m.CreateEntry(ctx, &game.MarketEntry{CorpID: id, Region: "North", Sector: "Mining"})
	require.NoError(t, err)
	_, err = m.CreateEntry(ctx, &game.MarketEntry{CorpID: id, Region: "North", Sector: "Mining"})
	require.ErrorIs(t, err, game.ErrDuplicateEntry)

	// A different region is a different entry.
	_, err = m.CreateEntry(ctx, &game.MarketEntry{CorpID: id, Region: "South", Sector: "Mining"})
	require.NoError(t, err)
}

func TestEntryUnitsCloneIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := seedCorp(t, m)
	_, err := m.CreateEntry(ctx, &game.MarketEntry{
		CorpID: id, Region: "North", Sector: "Mining",
		Units: map[game.UnitType]int64{game.UnitExtraction: 3},
	})
	require.NoError(t, err)

	e, err := m.GetEntry(ctx, id, "North", "Mining")
	require.NoError(t, err)
	e.Units[game.UnitExtraction] = 99

	again, err := m.GetEntry(ctx, id, "North", "Mining")
	require.NoError(t, err)
	require.Equal(t, int64(3), again.Units[game.UnitExtraction])
}

func TestAddVoteRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.AddVote(ctx, game.Vote{ProposalID: "p1", VoterID: "alice", Aye: true}))
	err := m.AddVote(ctx, game.Vote{ProposalID: "p1", VoterID: "alice", Aye: false})
	require.ErrorIs(t, err, game.ErrAlreadyVoted)

	// Same voter on another proposal is fine.
	require.NoError(t, m.AddVote(ctx, game.Vote{ProposalID: "p2", VoterID: "alice", Aye: true}))

	votes, err := m.Votes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.True(t, votes[0].Aye, "the first vote stands")
}

func TestActiveProposalsDueFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := seedCorp(t, m)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mk := func(pid string, status game.ProposalStatus, expires time.Time) {
		require.NoError(t, m.CreateProposal(ctx, &game.Proposal{
			ID: pid, CorpID: id, Status: status, ExpiresAt: expires,
		}))
	}
	mk("due", game.ProposalActive, now.Add(-time.Hour))
	mk("exact", game.ProposalActive, now)
	mk("future", game.ProposalActive, now.Add(time.Hour))
	mk("settled", game.ProposalPassed, now.Add(-time.Hour))

	due, err := m.ActiveProposals(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "due", due[0].ID)
	require.Equal(t, "exact", due[1].ID)
}

func TestResolveProposalWritesAtomically(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := seedCorp(t, m)
	require.NoError(t, m.PutShareholder(ctx, game.Shareholder{CorpID: id, UserID: "a", Shares: 10}))

	p := &game.Proposal{ID: "p1", CorpID: id, Status: game.ProposalActive}
	require.NoError(t, m.CreateProposal(ctx, p))

	require.NoError(t, m.PutUser(ctx, &game.User{ID: "a", CashMicros: 0}))

	corp, err := m.GetCorporation(ctx, id)
	require.NoError(t, err)
	corp.Focus = "exports"
	p.Status = game.ProposalPassed
	holders := []game.Shareholder{{CorpID: id, UserID: "a", Shares: 20}, {CorpID: id, UserID: "b", Shares: 0}}
	users := []*game.User{{ID: "a", CashMicros: 42}}
	txs := []game.Transaction{{ID: "t1", CorpID: id, AmountMicros: 42}}
	require.NoError(t, m.ResolveProposal(ctx, p, corp, holders, users, txs))

	got, err := m.GetProposal(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, game.ProposalPassed, got.Status)
	c, err := m.GetCorporation(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "exports", c.Focus)
	sh, ok, err := m.GetShareholder(ctx, id, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(20), sh.Shares)
	_, ok, err = m.GetShareholder(ctx, id, "b")
	require.NoError(t, err)
	require.False(t, ok, "zero rows are dropped from the replacement set")

	u, err := m.GetUser(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, int64(42), u.CashMicros, "user balances land in the same write")
	recorded, err := m.Transactions(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.Equal(t, "t1", recorded[0].ID)
}

func TestResolveProposalUnknownTargets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := seedCorp(t, m)

	err := m.ResolveProposal(ctx, &game.Proposal{ID: "ghost"}, nil, nil, nil, nil)
	require.ErrorIs(t, err, game.ErrProposalNotFound)

	p := &game.Proposal{ID: "p1", CorpID: id, Status: game.ProposalActive}
	require.NoError(t, m.CreateProposal(ctx, p))
	err = m.ResolveProposal(ctx, p, &game.Corporation{ID: 999}, nil, nil, nil)
	require.ErrorIs(t, err, game.ErrCorporationNotFound)

	// An unknown payout target rejects the whole write.
	err = m.ResolveProposal(ctx, p, nil, nil, []*game.User{{ID: "ghost"}}, nil)
	require.ErrorIs(t, err, game.ErrUserNotFound)
	got, err := m.GetProposal(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, game.ProposalActive, got.Status)
}

func TestTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, m.AppendTransaction(ctx, game.Transaction{
			ID: string(rune('a' + i)), CorpID: 1, AmountMicros: i,
		}))
	}
	require.NoError(t, m.AppendTransaction(ctx, game.Transaction{ID: "other", CorpID: 2, AmountMicros: 99}))

	txs, err := m.Transactions(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Equal(t, int64(5), txs[0].AmountMicros)
	require.Equal(t, int64(3), txs[2].AmountMicros)

	// corpID 0 means all corporations.
	all, err := m.Transactions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
}

func TestDeleteCorporationCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := seedCorp(t, m)
	require.NoError(t, m.PutShareholder(ctx, game.Shareholder{CorpID: id, UserID: "a", Shares: 10}))

	require.NoError(t, m.DeleteCorporation(ctx, id))
	_, err := m.GetCorporation(ctx, id)
	require.ErrorIs(t, err, game.ErrCorporationNotFound)
	holders, err := m.Shareholders(ctx, id)
	require.NoError(t, err)
	require.Empty(t, holders)

	require.ErrorIs(t, m.DeleteCorporation(ctx, id), game.ErrCorporationNotFound)
}

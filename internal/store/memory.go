package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Egg3901/corpgame-sub004/internal/game"
)

// Memory is the in-memory Store used by tests and ephemeral environments.
type Memory struct {
	mu           sync.RWMutex
	nextCorpID   int64
	nextEntryID  int64
	corps        map[int64]game.Corporation
	holders      map[int64]map[string]int64 // corpID -> userID -> shares
	users        map[string]game.User
	entries      map[int64]game.MarketEntry
	proposals    map[string]game.Proposal
	votes        map[string]map[string]game.Vote // proposalID -> voterID
	transactions []game.Transaction
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nextCorpID:  1,
		nextEntryID: 1,
		corps:       make(map[int64]game.Corporation),
		holders:     make(map[int64]map[string]int64),
		users:       make(map[string]game.User),
		entries:     make(map[int64]game.MarketEntry),
		proposals:   make(map[string]game.Proposal),
		votes:       make(map[string]map[string]game.Vote),
	}
}

func (m *Memory) CreateCorporation(_ context.Context, c *game.Corporation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextCorpID
	m.nextCorpID++
	m.corps[c.ID] = cloneCorp(*c)
	return c.ID, nil
}

func (m *Memory) GetCorporation(_ context.Context, id int64) (*game.Corporation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corps[id]
	if !ok {
		return nil, game.ErrCorporationNotFound
	}
	out := cloneCorp(c)
	return &out, nil
}

func (m *Memory) PutCorporation(_ context.Context, c *game.Corporation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.corps[c.ID]; !ok {
		return game.ErrCorporationNotFound
	}
	m.corps[c.ID] = cloneCorp(*c)
	return nil
}

func (m *Memory) DeleteCorporation(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.corps[id]; !ok {
		return game.ErrCorporationNotFound
	}
	delete(m.corps, id)
	delete(m.holders, id)
	for eid, e := range m.entries {
		if e.CorpID == id {
			delete(m.entries, eid)
		}
	}
	return nil
}

func (m *Memory) ListCorporations(_ context.Context) ([]*game.Corporation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*game.Corporation, 0, len(m.corps))
	for _, c := range m.corps {
		cc := cloneCorp(c)
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Shareholders(_ context.Context, corpID int64) ([]game.Shareholder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shareholdersLocked(corpID), nil
}

func (m *Memory) shareholdersLocked(corpID int64) []game.Shareholder {
	rows := make([]game.Shareholder, 0, len(m.holders[corpID]))
	for uid, n := range m.holders[corpID] {
		rows = append(rows, game.Shareholder{CorpID: corpID, UserID: uid, Shares: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows
}

func (m *Memory) GetShareholder(_ context.Context, corpID int64, userID string) (game.Shareholder, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.holders[corpID][userID]
	return game.Shareholder{CorpID: corpID, UserID: userID, Shares: n}, ok, nil
}

func (m *Memory) PutShareholder(_ context.Context, sh game.Shareholder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.holders[sh.CorpID]
	if !ok {
		byUser = make(map[string]int64)
		m.holders[sh.CorpID] = byUser
	}
	if sh.Shares == 0 {
		delete(byUser, sh.UserID)
		return nil
	}
	byUser[sh.UserID] = sh.Shares
	return nil
}

func (m *Memory) ReplaceShareholders(_ context.Context, corpID int64, rows []game.Shareholder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.Shares != 0 {
			byUser[r.UserID] = r.Shares
		}
	}
	m.holders[corpID] = byUser
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*game.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, game.ErrUserNotFound
	}
	out := u
	return &out, nil
}

func (m *Memory) PutUser(_ context.Context, u *game.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]*game.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*game.User, 0, len(m.users))
	for _, u := range m.users {
		uu := u
		out = append(out, &uu)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateEntry(_ context.Context, e *game.MarketEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.entries {
		if x.CorpID == e.CorpID && x.Region == e.Region && x.Sector == e.Sector {
			return 0, game.ErrDuplicateEntry
		}
	}
	e.ID = m.nextEntryID
	m.nextEntryID++
	m.entries[e.ID] = cloneEntry(*e)
	return e.ID, nil
}

func (m *Memory) GetEntry(_ context.Context, corpID int64, region, sector string) (*game.MarketEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.CorpID == corpID && e.Region == region && e.Sector == sector {
			out := cloneEntry(e)
			return &out, nil
		}
	}
	return nil, game.ErrEntryNotFound
}

func (m *Memory) PutEntry(_ context.Context, e *game.MarketEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return game.ErrEntryNotFound
	}
	m.entries[e.ID] = cloneEntry(*e)
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return game.ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *Memory) CorpEntries(_ context.Context, corpID int64) ([]game.MarketEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []game.MarketEntry
	for _, e := range m.entries {
		if e.CorpID == corpID {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateProposal(_ context.Context, p *game.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[p.ID] = *p
	return nil
}

func (m *Memory) GetProposal(_ context.Context, id string) (*game.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, game.ErrProposalNotFound
	}
	out := p
	return &out, nil
}

func (m *Memory) ListProposals(_ context.Context, corpID int64) ([]*game.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*game.Proposal
	for _, p := range m.proposals {
		if p.CorpID == corpID {
			pp := p
			out = append(out, &pp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ActiveProposals(_ context.Context, asOf time.Time) ([]*game.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*game.Proposal
	for _, p := range m.proposals {
		if p.Status == game.ProposalActive && !p.ExpiresAt.After(asOf) {
			pp := p
			out = append(out, &pp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (m *Memory) ResolveProposal(_ context.Context, p *game.Proposal, corp *game.Corporation, holders []game.Shareholder, users []*game.User, txs []game.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.proposals[p.ID]; !ok {
		return game.ErrProposalNotFound
	}
	if corp != nil {
		if _, ok := m.corps[corp.ID]; !ok {
			return game.ErrCorporationNotFound
		}
	}
	for _, u := range users {
		if _, ok := m.users[u.ID]; !ok {
			return game.ErrUserNotFound
		}
	}
	m.proposals[p.ID] = *p
	if corp != nil {
		m.corps[corp.ID] = cloneCorp(*corp)
	}
	if holders != nil {
		byUser := make(map[string]int64, len(holders))
		for _, r := range holders {
			if r.Shares != 0 {
				byUser[r.UserID] = r.Shares
			}
		}
		m.holders[p.CorpID] = byUser
	}
	for _, u := range users {
		m.users[u.ID] = *u
	}
	m.transactions = append(m.transactions, txs...)
	return nil
}

func (m *Memory) AddVote(_ context.Context, v game.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVoter, ok := m.votes[v.ProposalID]
	if !ok {
		byVoter = make(map[string]game.Vote)
		m.votes[v.ProposalID] = byVoter
	}
	if _, dup := byVoter[v.VoterID]; dup {
		return game.ErrAlreadyVoted
	}
	byVoter[v.VoterID] = v
	return nil
}

func (m *Memory) Votes(_ context.Context, proposalID string) ([]game.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]game.Vote, 0, len(m.votes[proposalID]))
	for _, v := range m.votes[proposalID] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out, nil
}

func (m *Memory) AppendTransaction(_ context.Context, t game.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, t)
	return nil
}

func (m *Memory) Transactions(_ context.Context, corpID int64, limit int) ([]game.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []game.Transaction
	for i := len(m.transactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if corpID == 0 || m.transactions[i].CorpID == corpID {
			out = append(out, m.transactions[i])
		}
	}
	return out, nil
}

func cloneCorp(c game.Corporation) game.Corporation {
	c.Board = append([]string(nil), c.Board...)
	return c
}

func cloneEntry(e game.MarketEntry) game.MarketEntry {
	units := make(map[game.UnitType]int64, len(e.Units))
	for k, v := range e.Units {
		units[k] = v
	}
	e.Units = units
	return e
}

package game

import "time"

type UnitType string

const (
	UnitRetail     UnitType = "retail"
	UnitProduction UnitType = "production"
	UnitService    UnitType = "service"
	UnitExtraction UnitType = "extraction"
)

var UnitTypes = []UnitType{UnitRetail, UnitProduction, UnitService, UnitExtraction}

type Corporation struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CEOUserID string    `json:"ceo_user_id"` // empty when the seat is vacant
	Sector    string    `json:"sector"`
	HQRegion  string    `json:"hq_region"`
	Focus     string    `json:"focus"`
	CreatedAt time.Time `json:"created_at"`

	CashMicros       int64 `json:"cash_micros"`
	TotalShares      int64 `json:"total_shares"`
	PublicShares     int64 `json:"public_shares"`
	SharePriceMicros int64 `json:"share_price_micros"`

	BoardSize       int      `json:"board_size"`
	Board           []string `json:"board"` // user ids with voting rights
	CEOSalaryMicros int64    `json:"ceo_salary_micros"` // per quarter
	DividendPct     float64  `json:"dividend_pct"`

	LastSpecialDividendAt     time.Time `json:"last_special_dividend_at"`
	LastSpecialDividendMicros int64     `json:"last_special_dividend_micros"`

	// LastProcessedPeriod makes turn accrual re-entrant: the processor skips
	// a corporation whose value is at or past the period being run.
	LastProcessedPeriod int64 `json:"last_processed_period"`
}

func (c *Corporation) IsBoardMember(userID string) bool {
	if userID == "" {
		return false
	}
	if userID == c.CEOUserID {
		return true
	}
	for _, id := range c.Board {
		if id == userID {
			return true
		}
	}
	return false
}

type Shareholder struct {
	CorpID int64  `json:"corp_id"`
	UserID string `json:"user_id"`
	Shares int64  `json:"shares"`
}

type MarketEntry struct {
	ID        int64              `json:"id"`
	CorpID    int64              `json:"corp_id"`
	Region    string             `json:"region"`
	Sector    string             `json:"sector"`
	Units     map[UnitType]int64 `json:"units"`
	CreatedAt time.Time          `json:"created_at"`
}

func (e *MarketEntry) TotalUnits() int64 {
	var n int64
	for _, c := range e.Units {
		n += c
	}
	return n
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CashMicros   int64  `json:"cash_micros"`
	ActionPoints int64  `json:"action_points"`
}

// Transaction is the append-only audit record for every cash movement.
// Nothing in the engine moves cash without writing one.
type Transaction struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	AmountMicros int64     `json:"amount_micros"`
	FromUserID   string    `json:"from_user_id,omitempty"`
	ToUserID     string    `json:"to_user_id,omitempty"`
	CorpID       int64     `json:"corp_id,omitempty"`
	Description  string    `json:"description"`
	At           time.Time `json:"at"`
}

type ProposalStatus string

const (
	ProposalActive ProposalStatus = "active"
	ProposalPassed ProposalStatus = "passed"
	ProposalFailed ProposalStatus = "failed"
)

type Proposal struct {
	ID         string          `json:"id"`
	CorpID     int64           `json:"corp_id"`
	ProposerID string          `json:"proposer_id"`
	Kind       ProposalKind    `json:"kind"`
	Payload    ProposalPayload `json:"payload"`
	Status     ProposalStatus  `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}

type Vote struct {
	ProposalID string    `json:"proposal_id"`
	VoterID    string    `json:"voter_id"`
	Aye        bool      `json:"aye"`
	At         time.Time `json:"at"`
}

type VoteTally struct {
	Aye      int `json:"aye"`
	Nay      int `json:"nay"`
	Eligible int `json:"eligible"`
}

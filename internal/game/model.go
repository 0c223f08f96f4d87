package game

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	MicrosPerCredit = int64(1_000_000)

	FoundingCostMicros = int64(500_000) * MicrosPerCredit
	EntryCostMicros    = int64(100_000) * MicrosPerCredit

	// Shares minted at founding. The founder's stake comes out of this
	// total; the remainder is public float.
	FoundingTotalShares   = int64(1_000_000)
	FoundingFounderShares = int64(100_000)

	// Issue may grow total shares by at most this fraction per call.
	IssuanceCapBps = int64(1_000) // 10%
)

var (
	ErrCorporationNotFound    = errors.New("corporation not found")
	ErrProposalNotFound       = errors.New("proposal not found")
	ErrEntryNotFound          = errors.New("market entry not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientFloat      = errors.New("insufficient public float")
	ErrInsufficientHolding    = errors.New("insufficient holding")
	ErrExceedsIssuanceCap     = errors.New("issuance exceeds 10% of total shares")
	ErrCooldownActive         = errors.New("special dividend cooldown active")
	ErrAlreadyVoted           = errors.New("board member already voted on this proposal")
	ErrProposalResolved       = errors.New("proposal already resolved")
	ErrNotBoardMember         = errors.New("caller is not a board member")
	ErrNotCEO                 = errors.New("caller is not the CEO")
	ErrBoardFull              = errors.New("board has no open seat")
	ErrDuplicateEntry         = errors.New("corporation already operates in that region and sector")
	ErrInsufficientActions    = errors.New("insufficient action points")
	ErrRegionCapacityExceeded = errors.New("unit count exceeds region capacity")

	// ErrIntegrity wraps consistency faults: share-count drift, a turn applied
	// twice for one period, a passed-but-unapplied proposal. Never corrected
	// in place; logged and surfaced for alarming.
	ErrIntegrity = errors.New("data integrity fault")
)

var corpNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 .&'-]{2,47}$`)

func ValidateCorpName(name string) error {
	if !corpNameRE.MatchString(strings.TrimSpace(name)) {
		return fmt.Errorf("corporation name must be 3-48 chars, letters, digits or .&'-")
	}
	return nil
}

func CreditsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerCredit)))
}

func MicrosToCredits(v int64) float64 {
	return float64(v) / float64(MicrosPerCredit)
}

// MaxIssuable is the largest share count Issue accepts for the given total.
func MaxIssuable(totalShares int64) int64 {
	return totalShares * IssuanceCapBps / 10_000
}

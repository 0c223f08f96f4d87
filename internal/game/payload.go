package game

import (
	"encoding/json"
	"fmt"
)

type ProposalKind string

const (
	KindCEONomination     ProposalKind = "ceo_nomination"
	KindSectorChange      ProposalKind = "sector_change"
	KindHQChange          ProposalKind = "hq_change"
	KindBoardSizeChange   ProposalKind = "board_size_change"
	KindMemberAppointment ProposalKind = "member_appointment"
	KindSalaryChange      ProposalKind = "ceo_salary_change"
	KindDividendChange    ProposalKind = "dividend_change"
	KindSpecialDividend   ProposalKind = "special_dividend"
	KindStockSplit        ProposalKind = "stock_split"
	KindFocusChange       ProposalKind = "focus_change"
)

// ProposalPayload is a closed union: one variant per proposal kind. Governance
// applies it with an exhaustive type switch, so adding a kind without an
// apply arm fails loudly at resolution time.
type ProposalPayload interface {
	Kind() ProposalKind
}

type CEONomination struct {
	CandidateID string `json:"candidate_id"`
}

type SectorChange struct {
	Sector string `json:"sector"`
}

type HQChange struct {
	Region string `json:"region"`
}

type BoardSizeChange struct {
	Size int `json:"size"`
}

type MemberAppointment struct {
	UserID string `json:"user_id"`
}

type SalaryChange struct {
	SalaryMicros int64 `json:"salary_micros"`
}

type DividendChange struct {
	Percent float64 `json:"percent"`
}

type SpecialDividend struct {
	Percent float64 `json:"percent"` // of corporate cash, paid pro-rata
}

type StockSplit struct {
	Ratio int64 `json:"ratio"`
}

type FocusChange struct {
	Focus string `json:"focus"`
}

func (CEONomination) Kind() ProposalKind     { return KindCEONomination }
func (SectorChange) Kind() ProposalKind      { return KindSectorChange }
func (HQChange) Kind() ProposalKind          { return KindHQChange }
func (BoardSizeChange) Kind() ProposalKind   { return KindBoardSizeChange }
func (MemberAppointment) Kind() ProposalKind { return KindMemberAppointment }
func (SalaryChange) Kind() ProposalKind      { return KindSalaryChange }
func (DividendChange) Kind() ProposalKind    { return KindDividendChange }
func (SpecialDividend) Kind() ProposalKind   { return KindSpecialDividend }
func (StockSplit) Kind() ProposalKind        { return KindStockSplit }
func (FocusChange) Kind() ProposalKind       { return KindFocusChange }

// DecodePayload rebuilds the typed payload from its stored kind + JSON body.
func DecodePayload(kind ProposalKind, raw []byte) (ProposalPayload, error) {
	var (
		p   ProposalPayload
		err error
	)
	switch kind {
	case KindCEONomination:
		var v CEONomination
		err, p = json.Unmarshal(raw, &v), v
	case KindSectorChange:
		var v SectorChange
		err, p = json.Unmarshal(raw, &v), v
	case KindHQChange:
		var v HQChange
		err, p = json.Unmarshal(raw, &v), v
	case KindBoardSizeChange:
		var v BoardSizeChange
		err, p = json.Unmarshal(raw, &v), v
	case KindMemberAppointment:
		var v MemberAppointment
		err, p = json.Unmarshal(raw, &v), v
	case KindSalaryChange:
		var v SalaryChange
		err, p = json.Unmarshal(raw, &v), v
	case KindDividendChange:
		var v DividendChange
		err, p = json.Unmarshal(raw, &v), v
	case KindSpecialDividend:
		var v SpecialDividend
		err, p = json.Unmarshal(raw, &v), v
	case KindStockSplit:
		var v StockSplit
		err, p = json.Unmarshal(raw, &v), v
	case KindFocusChange:
		var v FocusChange
		err, p = json.Unmarshal(raw, &v), v
	default:
		return nil, fmt.Errorf("unknown proposal kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

func EncodePayload(p ProposalPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil proposal payload")
	}
	return json.Marshal(p)
}

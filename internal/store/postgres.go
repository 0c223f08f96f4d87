package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Egg3901/corpgame-sub004/internal/game"
)

// Postgres is the production Store. Multi-row writes run in serializable
// transactions with conflict retry; per-entity reads and writes map to single
// statements.
type Postgres struct {
	db *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the schema when it does not exist yet.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS sim;

		CREATE TABLE IF NOT EXISTS sim.corporations (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			ceo_user_id TEXT NOT NULL DEFAULT '',
			sector TEXT NOT NULL,
			hq_region TEXT NOT NULL,
			focus TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			cash_micros BIGINT NOT NULL,
			total_shares BIGINT NOT NULL,
			public_shares BIGINT NOT NULL,
			share_price_micros BIGINT NOT NULL,
			board_size INT NOT NULL,
			board JSONB NOT NULL DEFAULT '[]'::jsonb,
			ceo_salary_micros BIGINT NOT NULL DEFAULT 0,
			dividend_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_special_dividend_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
			last_special_dividend_micros BIGINT NOT NULL DEFAULT 0,
			last_processed_period BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS sim.shareholders (
			corp_id BIGINT NOT NULL REFERENCES sim.corporations(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			shares BIGINT NOT NULL,
			PRIMARY KEY (corp_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS sim.users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			cash_micros BIGINT NOT NULL DEFAULT 0,
			action_points BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS sim.market_entries (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			corp_id BIGINT NOT NULL REFERENCES sim.corporations(id) ON DELETE CASCADE,
			region TEXT NOT NULL,
			sector TEXT NOT NULL,
			units JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (corp_id, region, sector)
		);

		CREATE TABLE IF NOT EXISTS sim.proposals (
			id TEXT PRIMARY KEY,
			corp_id BIGINT NOT NULL REFERENCES sim.corporations(id) ON DELETE CASCADE,
			proposer_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS sim.votes (
			proposal_id TEXT NOT NULL REFERENCES sim.proposals(id) ON DELETE CASCADE,
			voter_id TEXT NOT NULL,
			aye BOOLEAN NOT NULL,
			cast_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (proposal_id, voter_id)
		);

		CREATE TABLE IF NOT EXISTS sim.transactions (
			id TEXT PRIMARY KEY,
			tx_type TEXT NOT NULL,
			amount_micros BIGINT NOT NULL,
			from_user_id TEXT NOT NULL DEFAULT '',
			to_user_id TEXT NOT NULL DEFAULT '',
			corp_id BIGINT NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS transactions_corp_at ON sim.transactions (corp_id, at DESC);
	`)
	return err
}

func (s *Postgres) CreateCorporation(ctx context.Context, c *game.Corporation) (int64, error) {
	board, err := json.Marshal(c.Board)
	if err != nil {
		return 0, err
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO sim.corporations
			(name, ceo_user_id, sector, hq_region, focus, created_at,
			 cash_micros, total_shares, public_shares, share_price_micros,
			 board_size, board, ceo_salary_micros, dividend_pct)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`, c.Name, c.CEOUserID, c.Sector, c.HQRegion, c.Focus, c.CreatedAt,
		c.CashMicros, c.TotalShares, c.PublicShares, c.SharePriceMicros,
		c.BoardSize, board, c.CEOSalaryMicros, c.DividendPct).Scan(&c.ID)
	return c.ID, err
}

const corpColumns = `
	id, name, ceo_user_id, sector, hq_region, focus, created_at,
	cash_micros, total_shares, public_shares, share_price_micros,
	board_size, board, ceo_salary_micros, dividend_pct,
	last_special_dividend_at, last_special_dividend_micros, last_processed_period`

func scanCorp(row pgx.Row) (*game.Corporation, error) {
	var c game.Corporation
	var board []byte
	err := row.Scan(&c.ID, &c.Name, &c.CEOUserID, &c.Sector, &c.HQRegion, &c.Focus, &c.CreatedAt,
		&c.CashMicros, &c.TotalShares, &c.PublicShares, &c.SharePriceMicros,
		&c.BoardSize, &board, &c.CEOSalaryMicros, &c.DividendPct,
		&c.LastSpecialDividendAt, &c.LastSpecialDividendMicros, &c.LastProcessedPeriod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, game.ErrCorporationNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(board, &c.Board); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	return &c, nil
}

func (s *Postgres) GetCorporation(ctx context.Context, id int64) (*game.Corporation, error) {
	return scanCorp(s.db.QueryRow(ctx, `SELECT `+corpColumns+` FROM sim.corporations WHERE id = $1`, id))
}

func (s *Postgres) PutCorporation(ctx context.Context, c *game.Corporation) error {
	board, err := json.Marshal(c.Board)
	if err != nil {
		return err
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE sim.corporations
		SET name=$2, ceo_user_id=$3, sector=$4, hq_region=$5, focus=$6,
		    cash_micros=$7, total_shares=$8, public_shares=$9, share_price_micros=$10,
		    board_size=$11, board=$12, ceo_salary_micros=$13, dividend_pct=$14,
		    last_special_dividend_at=$15, last_special_dividend_micros=$16,
		    last_processed_period=$17
		WHERE id=$1
	`, c.ID, c.Name, c.CEOUserID, c.Sector, c.HQRegion, c.Focus,
		c.CashMicros, c.TotalShares, c.PublicShares, c.SharePriceMicros,
		c.BoardSize, board, c.CEOSalaryMicros, c.DividendPct,
		c.LastSpecialDividendAt, c.LastSpecialDividendMicros, c.LastProcessedPeriod)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrCorporationNotFound
	}
	return nil
}

func (s *Postgres) DeleteCorporation(ctx context.Context, id int64) error {
	cmd, err := s.db.Exec(ctx, `DELETE FROM sim.corporations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrCorporationNotFound
	}
	return nil
}

func (s *Postgres) ListCorporations(ctx context.Context) ([]*game.Corporation, error) {
	rows, err := s.db.Query(ctx, `SELECT `+corpColumns+` FROM sim.corporations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*game.Corporation
	for rows.Next() {
		c, err := scanCorp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) Shareholders(ctx context.Context, corpID int64) ([]game.Shareholder, error) {
	rows, err := s.db.Query(ctx, `
		SELECT corp_id, user_id, shares
		FROM sim.shareholders
		WHERE corp_id = $1
		ORDER BY user_id
	`, corpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Shareholder
	for rows.Next() {
		var sh game.Shareholder
		if err := rows.Scan(&sh.CorpID, &sh.UserID, &sh.Shares); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Postgres) GetShareholder(ctx context.Context, corpID int64, userID string) (game.Shareholder, bool, error) {
	sh := game.Shareholder{CorpID: corpID, UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT shares FROM sim.shareholders WHERE corp_id = $1 AND user_id = $2
	`, corpID, userID).Scan(&sh.Shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return sh, false, nil
	}
	if err != nil {
		return sh, false, err
	}
	return sh, true, nil
}

func (s *Postgres) PutShareholder(ctx context.Context, sh game.Shareholder) error {
	if sh.Shares == 0 {
		_, err := s.db.Exec(ctx, `
			DELETE FROM sim.shareholders WHERE corp_id = $1 AND user_id = $2
		`, sh.CorpID, sh.UserID)
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO sim.shareholders (corp_id, user_id, shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (corp_id, user_id) DO UPDATE SET shares = $3
	`, sh.CorpID, sh.UserID, sh.Shares)
	return err
}

func (s *Postgres) ReplaceShareholders(ctx context.Context, corpID int64, rows []game.Shareholder) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sim.shareholders WHERE corp_id = $1`, corpID); err != nil {
			return err
		}
		return insertShareholders(ctx, tx, corpID, rows)
	})
}

func insertShareholders(ctx context.Context, tx pgx.Tx, corpID int64, rows []game.Shareholder) error {
	for _, r := range rows {
		if r.Shares == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO sim.shareholders (corp_id, user_id, shares) VALUES ($1, $2, $3)
		`, corpID, r.UserID, r.Shares); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, id string) (*game.User, error) {
	var u game.User
	err := s.db.QueryRow(ctx, `
		SELECT id, name, cash_micros, action_points FROM sim.users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.CashMicros, &u.ActionPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) PutUser(ctx context.Context, u *game.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sim.users (id, name, cash_micros, action_points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, cash_micros = $3, action_points = $4
	`, u.ID, u.Name, u.CashMicros, u.ActionPoints)
	return err
}

func (s *Postgres) ListUsers(ctx context.Context) ([]*game.User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, cash_micros, action_points FROM sim.users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*game.User
	for rows.Next() {
		var u game.User
		if err := rows.Scan(&u.ID, &u.Name, &u.CashMicros, &u.ActionPoints); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateEntry(ctx context.Context, e *game.MarketEntry) (int64, error) {
	units, err := json.Marshal(e.Units)
	if err != nil {
		return 0, err
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO sim.market_entries (corp_id, region, sector, units, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.CorpID, e.Region, e.Sector, units, e.CreatedAt).Scan(&e.ID)
	if isUniqueViolation(err) {
		return 0, game.ErrDuplicateEntry
	}
	return e.ID, err
}

func scanEntry(row pgx.Row) (*game.MarketEntry, error) {
	var e game.MarketEntry
	var units []byte
	err := row.Scan(&e.ID, &e.CorpID, &e.Region, &e.Sector, &units, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, game.ErrEntryNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(units, &e.Units); err != nil {
		return nil, fmt.Errorf("decode units: %w", err)
	}
	return &e, nil
}

func (s *Postgres) GetEntry(ctx context.Context, corpID int64, region, sector string) (*game.MarketEntry, error) {
	return scanEntry(s.db.QueryRow(ctx, `
		SELECT id, corp_id, region, sector, units, created_at
		FROM sim.market_entries
		WHERE corp_id = $1 AND region = $2 AND sector = $3
	`, corpID, region, sector))
}

func (s *Postgres) PutEntry(ctx context.Context, e *game.MarketEntry) error {
	units, err := json.Marshal(e.Units)
	if err != nil {
		return err
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE sim.market_entries SET units = $2 WHERE id = $1
	`, e.ID, units)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrEntryNotFound
	}
	return nil
}

func (s *Postgres) DeleteEntry(ctx context.Context, id int64) error {
	cmd, err := s.db.Exec(ctx, `DELETE FROM sim.market_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrEntryNotFound
	}
	return nil
}

func (s *Postgres) CorpEntries(ctx context.Context, corpID int64) ([]game.MarketEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, corp_id, region, sector, units, created_at
		FROM sim.market_entries
		WHERE corp_id = $1
		ORDER BY id
	`, corpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.MarketEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateProposal(ctx context.Context, p *game.Proposal) error {
	payload, err := game.EncodePayload(p.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO sim.proposals (id, corp_id, proposer_id, kind, payload, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.CorpID, p.ProposerID, string(p.Kind), payload, string(p.Status), p.CreatedAt, p.ExpiresAt)
	return err
}

func scanProposal(row pgx.Row) (*game.Proposal, error) {
	var p game.Proposal
	var kind, status string
	var payload []byte
	var resolved *time.Time
	err := row.Scan(&p.ID, &p.CorpID, &p.ProposerID, &kind, &payload, &status, &p.CreatedAt, &p.ExpiresAt, &resolved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, game.ErrProposalNotFound
		}
		return nil, err
	}
	p.Kind = game.ProposalKind(kind)
	p.Status = game.ProposalStatus(status)
	if resolved != nil {
		p.ResolvedAt = *resolved
	}
	p.Payload, err = game.DecodePayload(p.Kind, payload)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const proposalColumns = `id, corp_id, proposer_id, kind, payload, status, created_at, expires_at, resolved_at`

func (s *Postgres) GetProposal(ctx context.Context, id string) (*game.Proposal, error) {
	return scanProposal(s.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM sim.proposals WHERE id = $1`, id))
}

func (s *Postgres) ListProposals(ctx context.Context, corpID int64) ([]*game.Proposal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+proposalColumns+` FROM sim.proposals WHERE corp_id = $1 ORDER BY created_at
	`, corpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*game.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ActiveProposals(ctx context.Context, asOf time.Time) ([]*game.Proposal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+proposalColumns+` FROM sim.proposals
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*game.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ResolveProposal(ctx context.Context, p *game.Proposal, corp *game.Corporation, holders []game.Shareholder, users []*game.User, txs []game.Transaction) error {
	payload, err := game.EncodePayload(p.Payload)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			UPDATE sim.proposals
			SET status = $2, payload = $3, resolved_at = $4
			WHERE id = $1
		`, p.ID, string(p.Status), payload, p.ResolvedAt)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return game.ErrProposalNotFound
		}
		if corp != nil {
			board, err := json.Marshal(corp.Board)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE sim.corporations
				SET ceo_user_id=$2, sector=$3, hq_region=$4, focus=$5,
				    cash_micros=$6, total_shares=$7, public_shares=$8, share_price_micros=$9,
				    board_size=$10, board=$11, ceo_salary_micros=$12, dividend_pct=$13,
				    last_special_dividend_at=$14, last_special_dividend_micros=$15
				WHERE id=$1
			`, corp.ID, corp.CEOUserID, corp.Sector, corp.HQRegion, corp.Focus,
				corp.CashMicros, corp.TotalShares, corp.PublicShares, corp.SharePriceMicros,
				corp.BoardSize, board, corp.CEOSalaryMicros, corp.DividendPct,
				corp.LastSpecialDividendAt, corp.LastSpecialDividendMicros); err != nil {
				return err
			}
		}
		if holders != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM sim.shareholders WHERE corp_id = $1`, p.CorpID); err != nil {
				return err
			}
			if err := insertShareholders(ctx, tx, p.CorpID, holders); err != nil {
				return err
			}
		}
		for _, u := range users {
			cmd, err := tx.Exec(ctx, `
				UPDATE sim.users SET cash_micros = $2 WHERE id = $1
			`, u.ID, u.CashMicros)
			if err != nil {
				return err
			}
			if cmd.RowsAffected() == 0 {
				return game.ErrUserNotFound
			}
		}
		for _, t := range txs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sim.transactions (id, tx_type, amount_micros, from_user_id, to_user_id, corp_id, description, at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, t.ID, t.Type, t.AmountMicros, t.FromUserID, t.ToUserID, t.CorpID, t.Description, t.At); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Postgres) AddVote(ctx context.Context, v game.Vote) error {
	cmd, err := s.db.Exec(ctx, `
		INSERT INTO sim.votes (proposal_id, voter_id, aye, cast_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (proposal_id, voter_id) DO NOTHING
	`, v.ProposalID, v.VoterID, v.Aye, v.At)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrAlreadyVoted
	}
	return nil
}

func (s *Postgres) Votes(ctx context.Context, proposalID string) ([]game.Vote, error) {
	rows, err := s.db.Query(ctx, `
		SELECT proposal_id, voter_id, aye, cast_at
		FROM sim.votes
		WHERE proposal_id = $1
		ORDER BY voter_id
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Vote
	for rows.Next() {
		var v game.Vote
		if err := rows.Scan(&v.ProposalID, &v.VoterID, &v.Aye, &v.At); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendTransaction(ctx context.Context, t game.Transaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sim.transactions (id, tx_type, amount_micros, from_user_id, to_user_id, corp_id, description, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Type, t.AmountMicros, t.FromUserID, t.ToUserID, t.CorpID, t.Description, t.At)
	return err
}

func (s *Postgres) Transactions(ctx context.Context, corpID int64, limit int) ([]game.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, tx_type, amount_micros, from_user_id, to_user_id, corp_id, description, at
		FROM sim.transactions
		WHERE ($1 = 0 OR corp_id = $1)
		ORDER BY at DESC
		LIMIT $2
	`, corpID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Transaction
	for rows.Next() {
		var t game.Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.AmountMicros, &t.FromUserID, &t.ToUserID, &t.CorpID, &t.Description, &t.At); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// inTx runs fn inside a serializable transaction, retrying on serialization
// conflicts with doubling backoff.
func (s *Postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return fmt.Errorf("transaction conflict: retries exhausted")
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

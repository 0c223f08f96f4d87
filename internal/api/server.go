package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Egg3901/corpgame-sub004/internal/catalog"
	"github.com/Egg3901/corpgame-sub004/internal/clock"
	"github.com/Egg3901/corpgame-sub004/internal/corp"
	"github.com/Egg3901/corpgame-sub004/internal/game"
	"github.com/Egg3901/corpgame-sub004/internal/gov"
	"github.com/Egg3901/corpgame-sub004/internal/identity"
	"github.com/Egg3901/corpgame-sub004/internal/pricing"
	"github.com/Egg3901/corpgame-sub004/internal/shares"
	"github.com/Egg3901/corpgame-sub004/internal/store"
	"github.com/Egg3901/corpgame-sub004/internal/turn"
)

// Identity arrives as trusted headers set by the upstream gateway; the server
// does not verify them itself.
const (
	headerUserID = "X-User-Id"
	headerAdmin  = "X-Admin"
)

type Server struct {
	log    *slog.Logger
	store  store.Store
	cat    *catalog.Catalog
	pricer *pricing.Pricer
	corps  *corp.Service
	market *shares.Market
	gov    *gov.Engine
	turns  *turn.Processor
	clock  *clock.Clock
	mux    *chi.Mux
}

func New(logger *slog.Logger, st store.Store, cat *catalog.Catalog, pr *pricing.Pricer, corps *corp.Service, market *shares.Market, govEng *gov.Engine, turns *turn.Processor, clk *clock.Clock) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:    logger,
		store:  st,
		cat:    cat,
		pricer: pr,
		corps:  corps,
		market: market,
		gov:    govEng,
		turns:  turns,
		clock:  clk,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.identityMiddleware)

		r.Post("/users", s.handleRegister)
		r.Get("/me", s.handleMe)

		r.Get("/catalog", s.handleCatalog)
		r.Get("/prices", s.handlePrices)
		r.Get("/prices/{name}/history", s.handlePriceHistory)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Post("/corporations", s.handleFound)
		r.Get("/corporations", s.handleListCorporations)
		r.Get("/corporations/{id}", s.handleDashboard)
		r.Delete("/corporations/{id}", s.handleDissolve)
		r.Get("/corporations/{id}/transactions", s.handleTransactions)

		r.Post("/corporations/{id}/market/enter", s.handleEnterMarket)
		r.Post("/corporations/{id}/market/abandon", s.handleAbandonMarket)
		r.Post("/corporations/{id}/market/units", s.handleSetUnits)

		r.Post("/corporations/{id}/shares/buy", s.handleBuyShares)
		r.Post("/corporations/{id}/shares/sell", s.handleSellShares)
		r.Post("/corporations/{id}/shares/issue", s.handleIssueShares)

		r.Post("/corporations/{id}/proposals", s.handleCreateProposal)
		r.Get("/corporations/{id}/proposals", s.handleListProposals)
		r.Post("/proposals/{id}/votes", s.handleVote)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/admin/turn/run", s.handleRunTurn)
			r.Post("/admin/recalc", s.handleRecalc)
			r.Post("/admin/time/advance", s.handleAdvanceTime)
			r.Post("/admin/proposals/resolve-due", s.handleResolveDue)
		})
	})
}

func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(headerUserID))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		admin := r.Header.Get(headerAdmin) == "1" || strings.EqualFold(r.Header.Get(headerAdmin), "true")
		ctx := identity.WithCaller(r.Context(), identity.Caller{UserID: userID, Admin: admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity.CallerFrom(r.Context())
		if !ok || !caller.Admin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerFrom(ctx context.Context) (identity.Caller, error) {
	caller, ok := identity.CallerFrom(ctx)
	if !ok || caller.UserID == "" {
		return identity.Caller{}, errors.New("missing identity context")
	}
	return caller, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.corps.EnsureUser(r.Context(), caller.UserID, strings.TrimSpace(in.Name))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	user, err := s.store.GetUser(r.Context(), caller.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.cat.Version(),
		"sectors": s.cat.Sectors(),
		"regions": s.cat.Regions(),
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prices": s.pricer.Snapshot()})
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.cat.Knows(name) {
		writeError(w, http.StatusNotFound, "unknown resource or product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "history": s.pricer.History(name)})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	corps, err := s.store.ListCorporations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type row struct {
		CorpID          int64  `json:"corp_id"`
		Name            string `json:"name"`
		MarketCapMicros int64  `json:"market_cap_micros"`
		PriceMicros     int64  `json:"price_micros"`
	}
	rows := make([]row, 0, len(corps))
	for _, c := range corps {
		rows = append(rows, row{
			CorpID:          c.ID,
			Name:            c.Name,
			MarketCapMicros: c.SharePriceMicros * c.TotalShares,
			PriceMicros:     c.SharePriceMicros,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].MarketCapMicros > rows[j].MarketCapMicros })
	if len(rows) > 100 {
		rows = rows[:100]
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleFound(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name   string `json:"name"`
		Sector string `json:"sector"`
		Region string `json:"region"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.corps.Found(r.Context(), caller.UserID, strings.TrimSpace(in.Name), in.Sector, in.Region)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListCorporations(w http.ResponseWriter, r *http.Request) {
	corps, err := s.store.ListCorporations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corporations": corps})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.store.GetCorporation(r.Context(), corpID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := s.store.CorpEntries(r.Context(), corpID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	holders, err := s.store.Shareholders(r.Context(), corpID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"corporation":  c,
		"entries":      entries,
		"shareholders": holders,
	})
}

func (s *Server) handleDissolve(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.corps.Dissolve(r.Context(), corpID, caller.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	txs, err := s.store.Transactions(r.Context(), corpID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleEnterMarket(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Region string `json:"region"`
		Sector string `json:"sector"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.corps.EnterMarket(r.Context(), corpID, caller.UserID, in.Region, in.Sector)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleAbandonMarket(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Region string `json:"region"`
		Sector string `json:"sector"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.corps.AbandonMarket(r.Context(), corpID, caller.UserID, in.Region, in.Sector); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetUnits(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Region string                  `json:"region"`
		Sector string                  `json:"sector"`
		Units  map[game.UnitType]int64 `json:"units"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.corps.SetUnits(r.Context(), corpID, caller.UserID, in.Region, in.Sector, in.Units)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuyShares(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.market.Buy)
}

func (s *Server) handleSellShares(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.market.Sell)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, trade func(context.Context, int64, string, int64) (shares.TradeResult, error)) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Shares int64 `json:"shares"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := trade(r.Context(), corpID, caller.UserID, in.Shares)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIssueShares(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.store.GetCorporation(r.Context(), corpID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if c.CEOUserID != caller.UserID {
		writeError(w, http.StatusForbidden, game.ErrNotCEO.Error())
		return
	}
	var in struct {
		Shares int64 `json:"shares"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.market.Issue(r.Context(), corpID, in.Shares)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Kind    game.ProposalKind `json:"kind"`
		Payload json.RawMessage   `json:"payload"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := game.DecodePayload(in.Kind, in.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.gov.Propose(r.Context(), corpID, caller.UserID, payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	corpID, err := corpIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.store.ListProposals(r.Context(), corpID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": out})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	proposalID := chi.URLParam(r, "id")
	var in struct {
		Aye bool `json:"aye"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.gov.CastVote(r.Context(), proposalID, caller.UserID, in.Aye)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := map[string]any{"ok": true}
	if res != nil {
		out["resolution"] = res
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunTurn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Period *int64 `json:"period"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	period := s.clock.CurrentPeriod()
	if in.Period != nil {
		period = *in.Period
	}
	rep, err := s.turns.Run(r.Context(), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRecalc(w http.ResponseWriter, r *http.Request) {
	rep, err := s.turns.RecalcAll(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleAdvanceTime fast-forwards game time, either by a duration or to the
// start of a named (year, quarter). Both forms are forward-only.
func (s *Server) handleAdvanceTime(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Duration string `json:"duration"`
		Year     int64  `json:"year"`
		Quarter  int    `json:"quarter"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var offset time.Duration
	switch {
	case in.Duration != "":
		d, err := time.ParseDuration(in.Duration)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "duration must be a positive Go duration")
			return
		}
		offset = s.clock.Advance(d)
	case in.Year != 0 || in.Quarter != 0:
		var err error
		offset, err = s.clock.AdvanceTo(in.Year, in.Quarter)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "provide duration or year and quarter")
		return
	}
	period := s.clock.CurrentPeriod()
	year, quarter := s.clock.Calendar(period)
	writeJSON(w, http.StatusOK, map[string]any{
		"offset":         offset.String(),
		"current_period": period,
		"year":           year,
		"quarter":        quarter,
		"game_time":      s.clock.Now(),
	})
}

func (s *Server) handleResolveDue(w http.ResponseWriter, r *http.Request) {
	out, err := s.gov.ResolveDue(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolutions": out})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrCorporationNotFound),
		errors.Is(err, game.ErrProposalNotFound),
		errors.Is(err, game.ErrEntryNotFound),
		errors.Is(err, game.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrNotCEO),
		errors.Is(err, game.ErrNotBoardMember):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrAlreadyVoted),
		errors.Is(err, game.ErrProposalResolved),
		errors.Is(err, game.ErrDuplicateEntry),
		errors.Is(err, game.ErrCooldownActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrInsufficientFloat),
		errors.Is(err, game.ErrInsufficientHolding),
		errors.Is(err, game.ErrInsufficientActions),
		errors.Is(err, game.ErrExceedsIssuanceCap),
		errors.Is(err, game.ErrRegionCapacityExceeded),
		errors.Is(err, game.ErrBoardFull):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrIntegrity):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func corpIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid corporation id")
	}
	return id, nil
}

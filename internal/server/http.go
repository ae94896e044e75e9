// Package server exposes the engine over HTTP/JSON. Command handlers
// submit events to the core's request bus and wait on a per-request
// reply channel; read handlers either query the live core state or the
// Postgres read models.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/govm-net/StabuLink/internal/core"
	"github.com/govm-net/StabuLink/internal/event"
	"github.com/govm-net/StabuLink/internal/fixedpoint"
	"github.com/govm-net/StabuLink/internal/ledger"
	"github.com/govm-net/StabuLink/internal/manager"
	"github.com/govm-net/StabuLink/internal/observability"
	"github.com/govm-net/StabuLink/internal/oracle"
	"github.com/govm-net/StabuLink/internal/pool"
	"github.com/govm-net/StabuLink/internal/query"
	"github.com/govm-net/StabuLink/internal/token"
)

// Server holds the API dependencies. apiSeq and depositSeq hand out
// source sequences for commands this gateway originates; they are seeded
// from the core's partition state after restore.
type Server struct {
	requests   chan<- core.Request
	queries    *query.Service
	metrics    *observability.Metrics
	log        zerolog.Logger
	adminToken string
	apiSeq     atomic.Int64
	depositSeq atomic.Int64
}

func New(requests chan<- core.Request, queries *query.Service, apiStart, depositStart int64, metrics *observability.Metrics) *Server {
	s := &Server{
		requests: requests,
		queries:  queries,
		metrics:  metrics,
		log:      observability.NewLogger("api"),
	}
	s.apiSeq.Store(apiStart)
	s.depositSeq.Store(depositStart)
	return s
}

// SetAdminToken enables the shared-secret check on operator endpoints.
// With an empty token the check is disabled.
func (s *Server) SetAdminToken(token string) {
	s.adminToken = token
}

// requireOperator gates a handler behind the X-Admin-Token header.
func (s *Server) requireOperator(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" {
			got := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
				writeError(w, "operator token required", http.StatusForbidden)
				return
			}
		}
		h(w, r)
	}
}

// Router builds the chi router for the API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		// Commands
		r.Post("/deposits", s.instrument("deposit", s.handleNativeDeposit))
		r.Post("/positions", s.instrument("position_open", s.handlePositionDeposit))
		r.Post("/positions/{positionID}/withdraw", s.instrument("position_withdraw", s.handlePositionWithdraw))
		r.Post("/positions/{positionID}/liquidate", s.instrument("position_liquidate", s.handlePositionLiquidate))
		r.Post("/pool/sell", s.instrument("pool_sell", s.handlePoolSell))
		r.Post("/pool/buy", s.instrument("pool_buy", s.handlePoolBuy))
		r.Post("/token/transfer", s.instrument("token_transfer", s.handleTokenTransfer))
		r.Post("/token/approve", s.instrument("token_approve", s.handleTokenApprove))
		r.Post("/token/burn", s.instrument("token_burn", s.requireOperator(s.handleTokenBurn)))
		r.Post("/token/rebase", s.instrument("token_rebase", s.requireOperator(s.handleRebase)))

		// Live state
		r.Get("/accounts/{account}", s.instrument("account", s.handleAccount))
		r.Get("/accounts/{account}/positions", s.instrument("account_positions", s.handleAccountPositions))
		r.Get("/token/balance/{account}", s.instrument("token_balance", s.handleTokenBalance))
		r.Get("/token/allowance", s.instrument("token_allowance", s.handleAllowance))
		r.Get("/token", s.instrument("token_info", s.handleTokenInfo))
		r.Get("/pool", s.instrument("pool_state", s.handlePoolState))
		r.Get("/positions/{positionID}", s.instrument("position", s.handlePosition))
		r.Get("/oracle/quote", s.instrument("oracle_quote", s.handleQuote))
		r.Get("/state", s.instrument("engine_state", s.handleEngineState))

		// Read models
		r.Get("/history/swaps", s.instrument("history_swaps", s.handleSwapHistory))
		r.Get("/history/quotes", s.instrument("history_quotes", s.handleQuoteHistory))
		r.Get("/history/events", s.instrument("history_events", s.handleEventHistory))
		r.Get("/accounts/{account}/history", s.instrument("account_history", s.handleAccountHistory))
		r.Get("/admin/integrity", s.instrument("integrity", s.handleIntegrity))
	})

	return r
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			if sw.status >= 400 {
				s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			}
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// submit sends an event to the core and waits for the reply.
func (s *Server) submit(ctx context.Context, evt event.Event) (*core.Result, error) {
	reply := make(chan core.Response, 1)
	select {
	case s.requests <- core.Request{Evt: evt, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-reply:
		return resp.Result, resp.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// view runs a read closure on the core goroutine and waits for it.
func (s *Server) view(ctx context.Context, fn func(v *core.View)) error {
	reply := make(chan core.Response, 1)
	select {
	case s.requests <- core.Request{Query: fn, Reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Command handlers ---

type depositRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

func (s *Server) handleNativeDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	evt := &event.NativeDeposit{
		DepositID: uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Sequence:  s.depositSeq.Add(1) - 1,
		Timestamp: time.Now().UTC(),
	}
	res, err := s.submit(r.Context(), evt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commandResponse(res))
}

type positionDepositRequest struct {
	UserID     string `json:"user_id"`
	Collateral string `json:"collateral"`
	Tier       uint8  `json:"tier"`
}

func (s *Server) handlePositionDeposit(w http.ResponseWriter, r *http.Request) {
	var req positionDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	acct, ok := parseUser(w, req.UserID)
	if !ok {
		return
	}
	collateral, ok := parseAmount(w, req.Collateral, "collateral")
	if !ok {
		return
	}

	evt := &event.PositionDeposit{
		CommandID:  uuid.New(),
		Caller:     acct,
		Collateral: collateral,
		Tier:       req.Tier,
		Sequence:   s.apiSeq.Add(1) - 1,
		Timestamp:  time.Now().UTC(),
	}
	res, err := s.submit(r.Context(), evt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, positionResponse(res))
}

type callerRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handlePositionWithdraw(w http.ResponseWriter, r *http.Request) {
	s.positionLifecycle(w, r, func(caller ledger.Account, id uint64) event.Event {
		return &event.PositionWithdraw{
			CommandID:  uuid.New(),
			Caller:     caller,
			PositionID: id,
			Sequence:   s.apiSeq.Add(1) - 1,
			Timestamp:  time.Now().UTC(),
		}
	})
}

func (s *Server) handlePositionLiquidate(w http.ResponseWriter, r *http.Request) {
	s.positionLifecycle(w, r, func(caller ledger.Account, id uint64) event.Event {
		return &event.PositionLiquidate{
			CommandID:  uuid.New(),
			Caller:     caller,
			PositionID: id,
			Sequence:   s.apiSeq.Add(1) - 1,
			Timestamp:  time.Now().UTC(),
		}
	})
}

func (s *Server) positionLifecycle(w http.ResponseWriter, r *http.Request, build func(ledger.Account, uint64) event.Event) {
	id, err := strconv.ParseUint(chi.URLParam(r, "positionID"), 10, 64)
	if err != nil {
		writeError(w, "invalid position id", http.StatusBadRequest)
		return
	}
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	acct, ok := parseUser(w, req.UserID)
	if !ok {
		return
	}

	res, err := s.submit(r.Context(), build(acct, id))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse(res))
}

type swapRequest struct {
	UserID   string `json:"user_id"`
	AmountIn string `json:"amount_in"`
	MinOut   string `json:"min_out"`
}

func (s *Server) handlePoolSell(w http.ResponseWriter, r *http.Request) {
	s.swap(w, r, func(caller ledger.Account, in, minOut *big.Int) event.Event {
		return &event.PoolSell{
			CommandID: uuid.New(),
			Caller:    caller,
			AmountIn:  in,
			MinOut:    minOut,
			Sequence:  s.apiSeq.Add(1) - 1,
			Timestamp: time.Now().UTC(),
		}
	})
}

func (s *Server) handlePoolBuy(w http.ResponseWriter, r *http.Request) {
	s.swap(w, r, func(caller ledger.Account, in, minOut *big.Int) event.Event {
		return &event.PoolBuy{
			CommandID: uuid.New(),
			Caller:    caller,
			AmountIn:  in,
			MinOut:    minOut,
			Sequence:  s.apiSeq.Add(1) - 1,
			Timestamp: time.Now().UTC(),
		}
	})
}

func (s *Server) swap(w http.ResponseWriter, r *http.Request, build func(ledger.Account, *big.Int, *big.Int) event.Event) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	acct, ok := parseUser(w, req.UserID)
	if !ok {
		return
	}
	amountIn, ok := parseAmount(w, req.AmountIn, "amount_in")
	if !ok {
		return
	}
	minOut, ok := parseAmount(w, req.MinOut, "min_out")
	if !ok {
		return
	}

	res, err := s.submit(r.Context(), build(acct, amountIn, minOut))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := commandResponse(res)
	if res.AmountOut != nil {
		out["amount_out"] = fixedpoint.String(res.AmountOut)
	}
	writeJSON(w, http.StatusOK, out)
}

type transferRequest struct {
	UserID string `json:"user_id"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	acct, ok := parseUser(w, req.UserID)
	if !ok {
		return
	}
	to, ok := parseAccount(w, req.To, "to")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	res, err := s.submit(r.Context(), &event.TokenTransfer{
		CommandID: uuid.New(),
		Caller:    acct,
		To:        to,
		Amount:    amount,
		Sequence:  s.apiSeq.Add(1) - 1,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse(res))
}

type approveRequest struct {
	UserID  string `json:"user_id"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	acct, ok := parseUser(w, req.UserID)
	if !ok {
		return
	}
	spender, ok := parseAccount(w, req.Spender, "spender")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	res, err := s.submit(r.Context(), &event.TokenApprove{
		CommandID: uuid.New(),
		Caller:    acct,
		Spender:   spender,
		Amount:    amount,
		Sequence:  s.apiSeq.Add(1) - 1,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse(res))
}

type burnRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

// handleTokenBurn is an operator command; the caller is the authority
// account.
func (s *Server) handleTokenBurn(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	from, ok := parseAccount(w, req.From, "from")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	res, err := s.submit(r.Context(), &event.TokenBurn{
		CommandID: uuid.New(),
		Caller:    ledger.AccountAuthority,
		From:      from,
		Amount:    amount,
		Sequence:  s.apiSeq.Add(1) - 1,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse(res))
}

type rebaseRequest struct {
	NewScale string `json:"new_scale"`
}

// handleRebase is an operator command; the caller is the authority
// account.
func (s *Server) handleRebase(w http.ResponseWriter, r *http.Request) {
	var req rebaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	scale, ok := parseAmount(w, req.NewScale, "new_scale")
	if !ok {
		return
	}

	res, err := s.submit(r.Context(), &event.Rebase{
		CommandID: uuid.New(),
		Caller:    ledger.AccountAuthority,
		NewScale:  scale,
		Sequence:  s.apiSeq.Add(1) - 1,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse(res))
}

// --- Live state handlers ---

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct := ledger.Account(chi.URLParam(r, "account"))
	var native, tokens string
	err := s.view(r.Context(), func(v *core.View) {
		native = fixedpoint.String(v.NativeBalance(acct))
		tokens = fixedpoint.String(v.TokenBalance(acct))
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": string(acct),
		"native":  native,
		"token":   tokens,
	})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	acct := ledger.Account(chi.URLParam(r, "account"))
	var balance string
	err := s.view(r.Context(), func(v *core.View) {
		balance = fixedpoint.String(v.TokenBalance(acct))
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": string(acct),
		"balance": balance,
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner := ledger.Account(r.URL.Query().Get("owner"))
	spender := ledger.Account(r.URL.Query().Get("spender"))
	if owner == "" || spender == "" {
		writeError(w, "owner and spender are required", http.StatusBadRequest)
		return
	}
	var allowance string
	err := s.view(r.Context(), func(v *core.View) {
		allowance = fixedpoint.String(v.Allowance(owner, spender))
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":     string(owner),
		"spender":   string(spender),
		"allowance": allowance,
	})
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	var scale, supply string
	err := s.view(r.Context(), func(v *core.View) {
		scale = fixedpoint.String(v.Scale())
		supply = fixedpoint.String(v.TotalSupply())
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"scale":        scale,
		"total_supply": supply,
	})
}

func (s *Server) handlePoolState(w http.ResponseWriter, r *http.Request) {
	var reserveNative, reserveToken, lastPrice, averagePrice string
	err := s.view(r.Context(), func(v *core.View) {
		rn, rt := v.PoolReserves()
		reserveNative = fixedpoint.String(rn)
		reserveToken = fixedpoint.String(rt)
		lastPrice = fixedpoint.String(v.PoolLastPrice())
		averagePrice = fixedpoint.String(v.PoolAveragePrice())
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reserve_native": reserveNative,
		"reserve_token":  reserveToken,
		"last_price":     lastPrice,
		"average_price":  averagePrice,
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "positionID"), 10, 64)
	if err != nil {
		writeError(w, "invalid position id", http.StatusBadRequest)
		return
	}
	var pos *manager.Position
	var posErr error
	err = s.view(r.Context(), func(v *core.View) {
		pos, posErr = v.Position(id)
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	if posErr != nil {
		s.writeDomainError(w, posErr)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleAccountPositions(w http.ResponseWriter, r *http.Request) {
	acct := ledger.Account(chi.URLParam(r, "account"))
	var positions []*manager.Position
	err := s.view(r.Context(), func(v *core.View) {
		positions = v.PositionsByOwner(acct)
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var quote *oracle.Quote
	err := s.view(r.Context(), func(v *core.View) {
		quote = v.LatestQuote()
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	if quote == nil {
		writeError(w, "no quote recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleEngineState(w http.ResponseWriter, r *http.Request) {
	var sequence int64
	var hash [32]byte
	err := s.view(r.Context(), func(v *core.View) {
		sequence = v.Sequence()
		hash = v.StateHash()
	})
	if err != nil {
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"next_sequence": sequence,
		"state_hash":    hexHash(hash),
	})
}

// --- Read model handlers ---

func (s *Server) handleSwapHistory(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, "read models unavailable", http.StatusServiceUnavailable)
		return
	}
	limit, after := pagination(r)
	swaps, err := s.queries.GetSwapHistory(r.Context(), r.URL.Query().Get("trader"), limit, after)
	if err != nil {
		s.log.Error().Err(err).Msg("swap history query failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, swaps)
}

func (s *Server) handleQuoteHistory(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, "read models unavailable", http.StatusServiceUnavailable)
		return
	}
	limit, after := pagination(r)
	quotes, err := s.queries.GetQuoteHistory(r.Context(), limit, after)
	if err != nil {
		s.log.Error().Err(err).Msg("quote history query failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, "read models unavailable", http.StatusServiceUnavailable)
		return
	}
	limit, after := pagination(r)
	events, err := s.queries.GetEvents(r.Context(), limit, after)
	if err != nil {
		s.log.Error().Err(err).Msg("event history query failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAccountHistory(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, "read models unavailable", http.StatusServiceUnavailable)
		return
	}
	acct := chi.URLParam(r, "account")
	limit, after := pagination(r)
	effects, err := s.queries.GetEffectHistory(r.Context(), acct, limit, after)
	if err != nil {
		s.log.Error().Err(err).Msg("account history query failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, effects)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, "read models unavailable", http.StatusServiceUnavailable)
		return
	}
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("integrity check failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

// parseUser maps a user_id UUID to its ledger account, writing a 400 on
// failure.
func parseUser(w http.ResponseWriter, raw string) (ledger.Account, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, "invalid user_id", http.StatusBadRequest)
		return "", false
	}
	return ledger.UserAccount(id), true
}

// parseAccount accepts either a full account path or a bare user UUID.
func parseAccount(w http.ResponseWriter, raw, field string) (ledger.Account, bool) {
	if raw == "" {
		writeError(w, field+" is required", http.StatusBadRequest)
		return "", false
	}
	if id, err := uuid.Parse(raw); err == nil {
		return ledger.UserAccount(id), true
	}
	return ledger.Account(raw), true
}

func parseAmount(w http.ResponseWriter, raw, field string) (*big.Int, bool) {
	v, err := fixedpoint.Parse(raw)
	if err != nil {
		writeError(w, "invalid "+field, http.StatusBadRequest)
		return nil, false
	}
	return v, true
}

// pagination reads limit and before query parameters. Limit is clamped
// to [1, 500] with a default of 50.
func pagination(r *http.Request) (int, *int64) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	var after *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			after = &n
		}
	}
	return limit, after
}

func hexHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// writeDomainError maps engine errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fixedpoint.ErrNegative),
		errors.Is(err, manager.ErrInvalidTier),
		errors.Is(err, token.ErrInvalidScale):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, oracle.ErrStaleQuote):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, manager.ErrPositionNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, token.ErrUnauthorized):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, manager.ErrNotMature):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, pool.ErrAmountOut):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
	default:
		s.log.Error().Err(err).Msg("command failed")
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func commandResponse(res *core.Result) map[string]interface{} {
	out := map[string]interface{}{}
	if res.Envelope != nil {
		out["sequence"] = res.Envelope.Sequence
	}
	if res.Duplicate {
		out["duplicate"] = true
	}
	return out
}

func positionResponse(res *core.Result) map[string]interface{} {
	out := commandResponse(res)
	if res.Position != nil {
		out["position"] = res.Position
	}
	return out
}

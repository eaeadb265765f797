package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"StableVault/internal/engine"
	"StableVault/internal/oracle"
	"StableVault/internal/position"
	"StableVault/internal/registry"
	"StableVault/internal/solvency"
	"StableVault/internal/token"
	"StableVault/internal/valuation"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const requestLimit = 1 << 20 // 1 MiB

// ============================================================
// Wire types
// ============================================================

type depositRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type mintRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type depositAndMintRequest struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateral_amount"`
	MintAmount       string `json:"mint_amount"`
}

type redeemRequest struct {
	User   string `json:"user"`
	To     string `json:"to"` // defaults to user
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type burnRequest struct {
	Payer  string `json:"payer"` // defaults to user
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type redeemForStableRequest struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateral_amount"`
	BurnAmount       string `json:"burn_amount"`
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debt_to_cover"`
}

type accountResponse struct {
	User               string `json:"user"`
	TotalDebt          string `json:"total_debt"`
	CollateralValueUsd string `json:"collateral_value_usd"`
	HealthFactor       string `json:"health_factor"`
}

type healthFactorResponse struct {
	User            string `json:"user"`
	HealthFactor    string `json:"health_factor"`
	MinHealthFactor string `json:"min_health_factor"`
	Liquidatable    bool   `json:"liquidatable"`
}

type operationResponse struct {
	OperationID  string    `json:"operation_id"`
	Kind         string    `json:"kind"`
	User         string    `json:"user"`
	Counterparty string    `json:"counterparty,omitempty"`
	Asset        string    `json:"asset,omitempty"`
	Amount       string    `json:"amount"`
	DebtDelta    string    `json:"debt_delta"`
	HealthFactor string    `json:"health_factor"`
	CreatedAt    time.Time `json:"created_at"`
}

type errorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	HealthFactor string `json:"health_factor,omitempty"`
}

// ============================================================
// Operation handlers
// ============================================================

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, ok := s.parseUUID(w, "user", req.User)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	s.finish(w, "applied", s.engine.DepositCollateral(user, req.Asset, amount))
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, ok := s.parseUUID(w, "user", req.User)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	s.finish(w, "applied", s.engine.MintStable(user, amount))
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	var req depositAndMintRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, ok := s.parseUUID(w, "user", req.User)
	if !ok {
		return
	}
	collateral, ok := s.parseAmount(w, "collateral_amount", req.CollateralAmount)
	if !ok {
		return
	}
	mint, ok := s.parseAmount(w, "mint_amount", req.MintAmount)
	if !ok {
		return
	}
	s.finish(w, "applied", s.engine.DepositCollateralAndMint(user, req.Asset, collateral, mint))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, ok := s.parseUUID(w, "user", req.User)
	if !ok {
		return
	}
	to := user
	if req.To != "" {
		if to, ok = s.parseUUID(w, "to", req.To); !ok {
			return
		}
	}
	amount, ok := s.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	s.finish(w, "applied", s.engine.RedeemCollateral(user, to, req.Asset, amount))
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, ok := s.parseUUID(w, "user", req.User)
	if !ok {
		return
	}
	payer := user
	if req.Payer != "" {
		if payer, ok = s.parseUUID(w, "payer", req.Payer); !ok {
			return
		}
	}
	amount, ok := s.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	s.finish(w, "applied", s.engine.BurnStable(payer, user, amount))
}

func (s *Server) handleRedeemForStable(w http.ResponseWriter, r *http.Request) {
	var req redeemForStableRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, ok := s.parseUUID(w, "user", req.User)
	if !ok {
		return
	}
	collateral, ok := s.parseAmount(w, "collateral_amount", req.CollateralAmount)
	if !ok {
		return
	}
	burn, ok := s.parseAmount(w, "burn_amount", req.BurnAmount)
	if !ok {
		return
	}
	s.finish(w, "applied", s.engine.RedeemCollateralForStable(user, req.Asset, collateral, burn))
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	liquidator, ok := s.parseUUID(w, "liquidator", req.Liquidator)
	if !ok {
		return
	}
	user, ok := s.parseUUID(w, "user", req.User)
	if !ok {
		return
	}
	cover, ok := s.parseAmount(w, "debt_to_cover", req.DebtToCover)
	if !ok {
		return
	}
	s.finish(w, "liquidated", s.engine.Liquidate(liquidator, user, req.Asset, cover))
}

// ============================================================
// Query handlers
// ============================================================

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := s.parseUUID(w, "user", chi.URLParam(r, "user"))
	if !ok {
		return
	}
	sum, err := s.engine.Account(user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{
		User:               sum.User.String(),
		TotalDebt:          sum.TotalDebt.String(),
		CollateralValueUsd: sum.CollateralValueUsd.String(),
		HealthFactor:       sum.HealthFactor.String(),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := s.parseUUID(w, "user", chi.URLParam(r, "user"))
	if !ok {
		return
	}
	hf, err := s.engine.HealthFactor(user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	min := s.engine.MinHealthFactor()
	s.writeJSON(w, http.StatusOK, healthFactorResponse{
		User:            user.String(),
		HealthFactor:    hf.String(),
		MinHealthFactor: min.String(),
		Liquidatable:    hf.Cmp(min) < 0,
	})
}

func (s *Server) handleCollateralBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := s.parseUUID(w, "user", chi.URLParam(r, "user"))
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")
	if !s.requireAsset(w, asset) {
		return
	}
	bal := s.engine.CollateralBalance(user, asset)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"user":   user.String(),
		"asset":  asset,
		"amount": bal.String(),
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if s.ops == nil {
		s.writeJSON(w, http.StatusNotImplemented, errorResponse{
			Error:   "journal_disabled",
			Message: "operation history requires the Postgres journal",
		})
		return
	}
	user, ok := s.parseUUID(w, "user", chi.URLParam(r, "user"))
	if !ok {
		return
	}
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			s.writeBadRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	rows, err := s.ops.RecentOperations(r.Context(), user, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]operationResponse, 0, len(rows))
	for _, row := range rows {
		op := operationResponse{
			OperationID:  row.OperationID.String(),
			Kind:         row.Kind,
			User:         row.UserID.String(),
			Amount:       row.Amount,
			DebtDelta:    row.DebtDelta,
			HealthFactor: row.HealthFactor,
			CreatedAt:    row.CreatedAt,
		}
		if row.Counterparty != nil {
			op.Counterparty = row.Counterparty.String()
		}
		if row.Asset != nil {
			op.Asset = *row.Asset
		}
		out = append(out, op)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"operations": out})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	type assetInfo struct {
		Symbol string `json:"symbol"`
		FeedID string `json:"feed_id"`
	}
	symbols := s.engine.CollateralAssets()
	assets := make([]assetInfo, 0, len(symbols))
	for _, sym := range symbols {
		feed, err := s.engine.FeedFor(sym)
		if err != nil {
			s.writeError(w, err)
			return
		}
		assets = append(assets, assetInfo{Symbol: sym, FeedID: feed})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

func (s *Server) handleUsdValue(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	amount, ok := s.parseAmount(w, "amount", r.URL.Query().Get("amount"))
	if !ok {
		return
	}
	usd, err := s.engine.UsdValue(asset, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset,
		"amount":    amount.String(),
		"usd_value": usd.String(),
	})
}

func (s *Server) handleTokenAmount(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	usd, ok := s.parseAmount(w, "usd", r.URL.Query().Get("usd"))
	if !ok {
		return
	}
	tokens, err := s.engine.TokenAmountFromUsd(asset, usd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":        asset,
		"usd":          usd.String(),
		"token_amount": tokens.String(),
	})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	p := s.engine.Params()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"liquidation_threshold": p.LiquidationThreshold,
		"liquidation_precision": p.LiquidationPrecision,
		"liquidation_bonus":     p.LiquidationBonus,
		"min_health_factor":     p.MinHealthFactor.String(),
	})
}

// ============================================================
// Helpers
// ============================================================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeBadRequest(w, fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	return true
}

func (s *Server) parseUUID(w http.ResponseWriter, field, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeBadRequest(w, fmt.Sprintf("%s must be a UUID", field))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) parseAmount(w http.ResponseWriter, field, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		s.writeBadRequest(w, fmt.Sprintf("%s must be a decimal integer", field))
		return nil, false
	}
	return amount, true
}

func (s *Server) requireAsset(w http.ResponseWriter, asset string) bool {
	for _, sym := range s.engine.CollateralAssets() {
		if sym == asset {
			return true
		}
	}
	s.writeError(w, fmt.Errorf("%w: %s", registry.ErrUnknownAsset, asset))
	return false
}

func (s *Server) finish(w http.ResponseWriter, status string, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: msg})
}

// writeError maps engine errors to HTTP statuses: validation failures are
// 400, state conflicts 409, pricing outages 503, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Message: err.Error()}
	status := http.StatusInternalServerError
	resp.Error = "internal"

	var broke *solvency.BreaksHealthFactorError
	switch {
	case errors.Is(err, engine.ErrZeroAmount):
		status, resp.Error = http.StatusBadRequest, "zero_amount"
	case errors.Is(err, registry.ErrUnknownAsset):
		status, resp.Error = http.StatusBadRequest, "unknown_asset"
	case errors.As(err, &broke):
		status, resp.Error = http.StatusConflict, "breaks_health_factor"
		resp.HealthFactor = broke.HealthFactor.String()
	case errors.Is(err, engine.ErrHealthFactorOk):
		status, resp.Error = http.StatusConflict, "health_factor_ok"
	case errors.Is(err, engine.ErrHealthFactorNotImproved):
		status, resp.Error = http.StatusConflict, "health_factor_not_improved"
	case errors.Is(err, position.ErrInsufficientCollateral):
		status, resp.Error = http.StatusConflict, "insufficient_collateral"
	case errors.Is(err, position.ErrInsufficientDebt):
		status, resp.Error = http.StatusConflict, "insufficient_debt"
	case errors.Is(err, token.ErrTransferFailed):
		status, resp.Error = http.StatusConflict, "transfer_failed"
	case errors.Is(err, oracle.ErrNoPrice), errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrPriceOutOfBand), errors.Is(err, valuation.ErrNonPositivePrice):
		status, resp.Error = http.StatusServiceUnavailable, "price_unavailable"
	}

	s.writeJSON(w, status, resp)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"skinvault/internal/config"
	"skinvault/internal/escrow"
	"skinvault/internal/hmacauth"
	"skinvault/internal/idempotency"
	"skinvault/internal/session"
	"skinvault/internal/steam"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Orchestrator is the slice of the escrow orchestrator the server uses.
type Orchestrator interface {
	CreateEscrow(ctx context.Context, sess session.Session, p escrow.CreateParams) (*escrow.CreateResult, error)
	ClaimPayment(ctx context.Context, sess session.Session, p escrow.ClaimParams) (*escrow.ClaimResult, error)
	CancelEscrow(ctx context.Context, sess session.Session, p escrow.CancelParams) (*escrow.CancelResult, error)
}

// Server is the HTTP front-end for escrow orchestration.
type Server struct {
	cfg     *config.Config
	orch    Orchestrator
	gateway escrow.Gateway
	sess    session.Session
	store   idempotency.Store
	hmac    *hmacauth.Verifier
	metrics *metricsRegistry
	logger  *slog.Logger

	httpServer    *http.Server
	rpcHealthFn   func(context.Context) error
	storeHealthFn func(context.Context) error
}

// NewServer wires routes, auth and metrics around the orchestrator.
func NewServer(cfg *config.Config, orch Orchestrator, gw escrow.Gateway, sess session.Session, store idempotency.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		orch:    orch,
		gateway: gw,
		sess:    sess,
		store:   store,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew(),
		},
		metrics: newMetricsRegistry(),
		logger:  logger,
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.storeHealthFn = checker.Ping
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.hmac.Middleware)
			r.Post("/escrows", s.handleCreate)
			r.Post("/escrows/{id}/claim", s.handleClaim)
			r.Post("/escrows/{id}/cancel", s.handleCancel)
			r.Post("/accounts/link", s.handleLinkAccount)
		})
		r.Get("/escrows", s.handleListEscrows)
		r.Get("/escrows/{id}", s.handleGetEscrow)
		r.Get("/marketplace/listings", s.handleListings)
		r.Handle("/metrics", s.metrics.handler())
		r.Get("/health", s.handleHealth)
	})

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// SetRPCHealth installs the chain connectivity probe used by /health.
func (s *Server) SetRPCHealth(fn func(context.Context) error) {
	s.rpcHealthFn = fn
}

func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type createRequest struct {
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	AssetID       string `json:"assetId"`
	AssetName     string `json:"assetName"`
	AssetAmount   uint64 `json:"assetAmount"`
	ClassID       string `json:"classId"`
	InstanceID    string `json:"instanceId"`
	AppID         string `json:"appId"`
	ContextID     string `json:"contextId"`
	TradeURL      string `json:"tradeUrl"`
	Price         string `json:"price"`
	Description   string `json:"description"`
	SellerSteamID string `json:"sellerSteamId"`
	BuyerSteamID  string `json:"buyerSteamId"`
}

type createResponse struct {
	Digest             string   `json:"digest"`
	AdvisoryID         string   `json:"advisoryId"`
	PriceMist          uint64   `json:"priceMist"`
	InitialSellerCount int      `json:"initialSellerCount"`
	InitialBuyerCount  int      `json:"initialBuyerCount"`
	Warnings           []string `json:"warnings,omitempty"`
}

type claimRequest struct {
	EscrowObjectID string `json:"escrowObjectId"`
}

type claimResponse struct {
	Digest       string               `json:"digest"`
	Verification escrow.Verification `json:"verification"`
}

type cancelRequest struct {
	EscrowObjectID string `json:"escrowObjectId"`
	LockedObjectID string `json:"lockedObjectId,omitempty"`
	KeyObjectID    string `json:"keyObjectId,omitempty"`
}

type cancelResponse struct {
	Digest    string                  `json:"digest"`
	Message   string                  `json:"message"`
	Inventory escrow.InventoryStatus `json:"inventory"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.withIdempotency(w, r, "create", func(ctx context.Context, body []byte) (int, any, error) {
		var req createRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, nil, fmt.Errorf("invalid json payload: %w", err)
		}
		result, err := s.orch.CreateEscrow(ctx, s.sess, escrow.CreateParams{
			Buyer:         req.Buyer,
			Seller:        req.Seller,
			AssetID:       req.AssetID,
			AssetName:     req.AssetName,
			AssetAmount:   req.AssetAmount,
			ClassID:       req.ClassID,
			InstanceID:    req.InstanceID,
			AppID:         req.AppID,
			ContextID:     req.ContextID,
			TradeURL:      req.TradeURL,
			PriceDisplay:  req.Price,
			Description:   req.Description,
			SellerSteamID: req.SellerSteamID,
			BuyerSteamID:  req.BuyerSteamID,
		})
		if err != nil {
			return 0, nil, err
		}
		s.recordEscrow(ctx, req, result)
		return http.StatusCreated, createResponse{
			Digest:             result.Execution.Digest,
			AdvisoryID:         result.AdvisoryID,
			PriceMist:          result.PriceMist,
			InitialSellerCount: result.InitialSellerCount,
			InitialBuyerCount:  result.InitialBuyerCount,
			Warnings:           result.Warnings,
		}, nil
	})
}

// recordEscrow persists the read-model record after a successful chain
// submission. The chain state is authoritative; a record failure is logged
// and does not fail the create.
func (s *Server) recordEscrow(ctx context.Context, req createRequest, result *escrow.CreateResult) {
	now := time.Now().UTC()
	record := escrow.Record{
		TransactionID: result.Execution.Digest,
		Buyer:         req.Buyer,
		Seller:        req.Seller,
		Item: escrow.Item{
			Name:    req.AssetName,
			AppID:   req.AppID,
			AssetID: req.AssetID,
		},
		Amount:        req.Price,
		Status:        escrow.StatusDeposited,
		SteamTradeURL: req.TradeURL,
		Description:   req.Description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.gateway.CreateEscrowRecord(ctx, record); err != nil {
		s.logger.Warn("escrow record not persisted", "digest", result.Execution.Digest, "err", err)
	}
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	escrowID := chi.URLParam(r, "id")
	s.withIdempotency(w, r, "claim", func(ctx context.Context, body []byte) (int, any, error) {
		var req claimRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, nil, fmt.Errorf("invalid json payload: %w", err)
		}
		result, err := s.orch.ClaimPayment(ctx, s.sess, escrow.ClaimParams{
			EscrowID:       escrowID,
			EscrowObjectID: req.EscrowObjectID,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, claimResponse{
			Digest:       result.Execution.Digest,
			Verification: result.Verification,
		}, nil
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	escrowID := chi.URLParam(r, "id")
	s.withIdempotency(w, r, "cancel", func(ctx context.Context, body []byte) (int, any, error) {
		var req cancelRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, nil, fmt.Errorf("invalid json payload: %w", err)
		}
		result, err := s.orch.CancelEscrow(ctx, s.sess, escrow.CancelParams{
			EscrowID:       escrowID,
			EscrowObjectID: req.EscrowObjectID,
			LockedObjectID: req.LockedObjectID,
			KeyObjectID:    req.KeyObjectID,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, cancelResponse{
			Digest:    result.Execution.Digest,
			Message:   result.Message,
			Inventory: result.Inventory,
		}, nil
	})
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
		SteamID string `json:"steamID"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "", "invalid json payload")
		return
	}
	if req.Address == "" || req.SteamID == "" {
		s.writeError(w, http.StatusBadRequest, "", "address and steamID are required")
		return
	}
	if err := s.gateway.LinkAccount(r.Context(), req.Address, req.SteamID); err != nil {
		s.writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	record, err := s.gateway.GetEscrow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	resp := struct {
		escrow.Record
		Role escrow.Role `json:"role,omitempty"`
	}{Record: *record, Role: record.RoleOf(r.URL.Query().Get("viewer"))}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListEscrows(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		s.writeError(w, http.StatusBadRequest, "", "address query parameter is required")
		return
	}
	records, err := s.gateway.ListEscrows(r.Context(), address)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	listings, err := s.gateway.Listings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// withIdempotency wraps a mutating operation with idempotency-key handling:
// replays return the stored response, key reuse with a different body is a
// conflict, and fresh results are recorded before being written.
func (s *Server) withIdempotency(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, body []byte) (int, any, error)) {
	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "", "missing X-Idempotency-Key header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "", "unreadable request body")
		return
	}

	ctx := r.Context()
	requestHash := idempotency.HashRequest(r.Method, r.URL.Path, body)
	cached, err := s.store.Get(ctx, op+":"+key, requestHash)
	if errors.Is(err, idempotency.ErrRequestMismatch) {
		s.writeError(w, http.StatusConflict, "idempotency_mismatch", err.Error())
		return
	}
	if err != nil {
		// Fail open: a broken store must not block operations, but the
		// lost replay protection has to be visible.
		s.logger.Warn("idempotency lookup failed", "op", op, "err", err)
	}
	if cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(cached.StatusCode)
		_, _ = w.Write(cached.Response)
		s.metrics.incCached(op)
		return
	}

	done := s.metrics.opStarted()
	defer done()

	status, payload, err := fn(ctx, body)
	if err != nil {
		s.metrics.incOp(op, "failed")
		s.writeOperationError(w, status, err)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.metrics.incOp(op, "failed")
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}

	now := time.Now()
	record := idempotency.Record{
		RequestHash: requestHash,
		StatusCode:  status,
		Response:    raw,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Service.IdempotencyWindow()),
	}
	if err := s.store.Save(ctx, op+":"+key, record); err != nil {
		s.logger.Warn("idempotency save failed", "op", op, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
	s.metrics.incOp(op, "ok")
}

// writeOperationError maps orchestrator errors onto HTTP status codes and
// stable error codes the front-end can branch on.
func (s *Server) writeOperationError(w http.ResponseWriter, status int, err error) {
	switch {
	case errors.Is(err, steam.ErrInvalidTradeURL):
		s.writeError(w, http.StatusBadRequest, "invalid_trade_url", err.Error())
	case errors.Is(err, escrow.ErrInvalidParams):
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, escrow.ErrTransferCompleted):
		s.writeError(w, http.StatusConflict, "transfer_completed", err.Error())
	case errors.Is(err, escrow.ErrCannotCancel):
		s.writeError(w, http.StatusConflict, "cannot_cancel", err.Error())
	case errors.Is(err, escrow.ErrOperationInFlight):
		s.writeError(w, http.StatusConflict, "operation_in_flight", err.Error())
	case errors.Is(err, escrow.ErrTransferNotVerified):
		s.writeError(w, http.StatusPreconditionFailed, "transfer_not_verified", err.Error())
	case errors.Is(err, session.ErrNotConnected):
		s.writeError(w, http.StatusServiceUnavailable, "wallet_not_connected", err.Error())
	case status != 0:
		s.writeError(w, status, "", err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, "", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	storeInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.storeHealthFn != nil {
		storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.storeHealthFn(storeCtx); err != nil {
			storeInfo.Connected = false
			storeInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, struct {
		Status string `json:"status"`
		RPC    any    `json:"rpc"`
		Store  any    `json:"store"`
	}{Status: status, RPC: rpcInfo, Store: storeInfo})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", uuid.NewString())
		}
		next.ServeHTTP(w, r)
	})
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"solana-rpcpool-go/internal/limiter"
	"solana-rpcpool-go/internal/models"
	"solana-rpcpool-go/internal/monitor"
	"solana-rpcpool-go/internal/recovery"
	"solana-rpcpool-go/internal/rpcpool"
	"solana-rpcpool-go/internal/solana"
	"solana-rpcpool-go/internal/web"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRPCBodyBytes = 1 << 20

// HistoryStore is satisfied by *database.Repository.
type HistoryStore interface {
	RecentSnapshots(ctx context.Context, limit int) ([]models.EndpointSnapshot, error)
}

// Server 聚合 HTTP 层依赖；History 与 Hub 可为空
type Server struct {
	Pool     *rpcpool.Pool
	Client   *solana.Client
	Prober   rpcpool.Prober
	History  HistoryStore
	Usage    *monitor.Usage
	Limiter  *limiter.RateLimiter
	Hub      *web.Hub
	Gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func (s *Server) Router() *mux.Router {
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.Gatherer == nil {
		s.Gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.Use(s.recoverMiddleware, s.logMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/balance/{address}", s.balanceHandler).Methods(http.MethodGet)
	api.HandleFunc("/signatures/{address}", s.signaturesHandler).Methods(http.MethodGet)
	api.HandleFunc("/transaction/{signature}", s.transactionHandler).Methods(http.MethodGet)
	api.HandleFunc("/token-accounts/{address}", s.tokenAccountsHandler).Methods(http.MethodGet)
	api.HandleFunc("/rpc", s.rpcHandler).Methods(http.MethodPost)
	api.HandleFunc("/pool", s.poolHandler).Methods(http.MethodGet)
	api.HandleFunc("/pool/recheck", s.recheckHandler).Methods(http.MethodPost)
	api.HandleFunc("/pool/history", s.historyHandler).Methods(http.MethodGet)
	api.HandleFunc("/usage", s.usageHandler).Methods(http.MethodGet)
	api.HandleFunc("/rate-limit", s.rateLimitHandler).Methods(http.MethodGet)
	api.HandleFunc("/rate-limit", s.setRateLimitHandler).Methods(http.MethodPut)

	if s.Hub != nil {
		r.HandleFunc("/ws", s.Hub.HandleWS)
	}
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	return r
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !solana.ValidateAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"balance": s.Client.GetBalance(r.Context(), address),
	})
}

func (s *Server) signaturesHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !solana.ValidateAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	limit, err := queryInt(r, "limit", solana.DefaultSignatureLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	before := r.URL.Query().Get("before")
	writeJSON(w, http.StatusOK, s.Client.GetSignaturesBefore(r.Context(), address, limit, before))
}

func (s *Server) transactionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Client.GetTransaction(r.Context(), mux.Vars(r)["signature"]))
}

func (s *Server) tokenAccountsHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !solana.ValidateAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	writeJSON(w, http.StatusOK, s.Client.GetTokenAccountsByOwner(r.Context(), address))
}

type rpcCall struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     *int64 `json:"id"`
}

// rpcHandler 透传任意方法；失败信封以 502 返回，信封本身不变
func (s *Server) rpcHandler(w http.ResponseWriter, r *http.Request) {
	var call rpcCall
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRPCBodyBytes))
	if err := dec.Decode(&call); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if call.Method == "" {
		writeError(w, http.StatusBadRequest, "method is required")
		return
	}

	var env *rpcpool.Envelope
	if call.ID != nil {
		env = s.Client.CallWithID(r.Context(), *call.ID, call.Method, call.Params)
	} else {
		env = s.Client.Call(r.Context(), call.Method, call.Params...)
	}
	status := http.StatusOK
	if !env.OK() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, env)
}

func (s *Server) poolHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Pool.Status())
}

func (s *Server) recheckHandler(w http.ResponseWriter, r *http.Request) {
	if s.Prober == nil {
		writeError(w, http.StatusServiceUnavailable, "prober not configured")
		return
	}
	healthy := s.Pool.Recheck(r.Context(), s.Prober)
	if s.Hub != nil {
		web.PublishProbe(s.Hub, healthy, s.Pool.Size())
		s.Hub.Broadcast(web.StatusEvent(s.Pool))
	}
	writeJSON(w, http.StatusOK, s.Pool.Status())
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot history disabled")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	snaps, err := s.History.RecentSnapshots(r.Context(), limit)
	if err != nil {
		s.logger.Error("snapshot_history_failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) usageHandler(w http.ResponseWriter, r *http.Request) {
	if s.Usage == nil {
		writeError(w, http.StatusServiceUnavailable, "usage monitor disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.Usage.Snapshot())
}

type rateLimit struct {
	MaxRPS *float64 `json:"max_rps"`
}

func (s *Server) rateLimitHandler(w http.ResponseWriter, r *http.Request) {
	if s.Limiter == nil {
		writeError(w, http.StatusServiceUnavailable, "rate limiter disabled")
		return
	}
	rps := s.Limiter.MaxRPS()
	writeJSON(w, http.StatusOK, rateLimit{MaxRPS: &rps})
}

// setRateLimitHandler 运行时调整出站限速；max_rps 为 0 表示不限速
func (s *Server) setRateLimitHandler(w http.ResponseWriter, r *http.Request) {
	if s.Limiter == nil {
		writeError(w, http.StatusServiceUnavailable, "rate limiter disabled")
		return
	}
	var body rateLimit
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRPCBodyBytes)).Decode(&body); err != nil || body.MaxRPS == nil {
		writeError(w, http.StatusBadRequest, "max_rps is required")
		return
	}
	if *body.MaxRPS < 0 {
		writeError(w, http.StatusBadRequest, "max_rps must not be negative")
		return
	}
	s.Limiter.SetRate(*body.MaxRPS)
	s.rateLimitHandler(w, r)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.Pool.HealthyCount()
	status := http.StatusOK
	if healthy == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]int{"healthy": healthy, "total": s.Pool.Size()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// websocket upgrades need the raw writer for Hijack
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if recovery.Run("http:"+r.URL.Path, func() { next.ServeHTTP(w, r) }) {
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

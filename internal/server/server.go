package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"fluxgate/internal/claim"
	"fluxgate/internal/config"
	"fluxgate/internal/fault"
	"fluxgate/internal/hmacauth"
	"fluxgate/internal/ledger"
	"fluxgate/internal/lock"
	"fluxgate/internal/notify"
	"fluxgate/internal/realtime"
)

// HealthChecker is implemented by collaborators that can report liveness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the coordinator's HTTP delivery: the dashboard UI talks to these
// endpoints instead of to the chain or the ledger directly.
type Server struct {
	cfg       *config.AppConfig
	lock      *lock.Coordinator
	claims    *claim.Coordinator
	scheduler *lock.Scheduler
	notices   *notify.Center
	hmac      *hmacauth.Verifier
	metrics   *metricsRegistry

	httpServer     *http.Server
	configProblems []string

	ledgerHealthFn func(context.Context) error
	chainHealthFn  func(context.Context) error
}

func NewServer(cfg *config.AppConfig, lockCoord *lock.Coordinator, claimCoord *claim.Coordinator, sched *lock.Scheduler, ledgerClient ledger.Client, chain HealthChecker, notices *notify.Center) *Server {
	metrics := newMetricsRegistry()

	s := &Server{
		cfg:       cfg,
		lock:      lockCoord,
		claims:    claimCoord,
		scheduler: sched,
		notices:   notices,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		metrics:        metrics,
		configProblems: cfg.Problems(),
	}

	if checker, ok := ledgerClient.(HealthChecker); ok {
		s.ledgerHealthFn = checker.Ping
	}
	if chain != nil {
		s.chainHealthFn = chain.Ping
	}

	lockCoord.OnRefresh = metrics.incPoll
	lockCoord.OnConfirmed = func(*ledger.LockSubmission) {
		metrics.setUnlocked(true)
	}
	claimCoord.OnClaim = metrics.incClaim

	mux := http.NewServeMux()
	mux.Handle("/api/v1/lock", s.hmac.Middleware(http.HandlerFunc(s.handleLock)))
	mux.Handle("/api/v1/lock/verify", s.hmac.Middleware(http.HandlerFunc(s.handleLockVerify)))
	mux.Handle("/api/v1/lock/status", s.hmac.Middleware(http.HandlerFunc(s.handleLockStatus)))
	mux.Handle("/api/v1/claim", s.hmac.Middleware(http.HandlerFunc(s.handleClaim)))
	mux.Handle("/api/v1/balance", s.hmac.Middleware(http.HandlerFunc(s.handleBalance)))
	mux.Handle("/api/v1/notices", s.hmac.Middleware(http.HandlerFunc(s.handleNotices)))
	mux.Handle("/api/v1/disconnect", s.hmac.Middleware(http.HandlerFunc(s.handleDisconnect)))
	mux.Handle("/api/v1/metrics", metrics.handler())
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.Printf("fluxgate API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NotifyRealtime multiplexes a realtime change notification into the
// verification scheduler. Wired as the realtime listener's callback.
func (s *Server) NotifyRealtime(realtime.Event) {
	s.metrics.incRealtime()
	if s.scheduler != nil {
		s.scheduler.Notify()
	}
}

type lockStatusResponse struct {
	Submission      *ledger.LockSubmission `json:"submission"`
	EffectiveStatus ledger.Status          `json:"effectiveStatus"`
	Unlocked        bool                   `json:"unlocked"`
}

type claimResponse struct {
	Balance     *ledger.FluxBalance `json:"balance"`
	NextClaimAt string              `json:"nextClaimAt,omitempty"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rejectMisconfigured(w) {
		return
	}

	sub, err := s.lock.SubmitLock(r.Context())
	if err != nil {
		s.metrics.incSubmission("failed")
		s.writeError(w, err)
		return
	}
	s.metrics.incSubmission("submitted")
	writeJSON(w, http.StatusCreated, lockStatusResponse{
		Submission:      sub,
		EffectiveStatus: lock.Effective(sub),
		Unlocked:        lock.Unlocked(sub),
	})
}

func (s *Server) handleLockVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// A refresh already in flight covers this request; report the current
	// record either way.
	ran, err := s.lock.TryRefresh(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	sub := s.lock.Current()
	s.metrics.setUnlocked(lock.Unlocked(sub))
	writeJSON(w, http.StatusOK, struct {
		Refreshed bool `json:"refreshed"`
		lockStatusResponse
	}{
		Refreshed: ran,
		lockStatusResponse: lockStatusResponse{
			Submission:      sub,
			EffectiveStatus: lock.Effective(sub),
			Unlocked:        lock.Unlocked(sub),
		},
	})
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sub := s.lock.Current()
	s.metrics.setUnlocked(lock.Unlocked(sub))
	writeJSON(w, http.StatusOK, lockStatusResponse{
		Submission:      sub,
		EffectiveStatus: lock.Effective(sub),
		Unlocked:        lock.Unlocked(sub),
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rejectMisconfigured(w) {
		return
	}

	bal, err := s.claims.Claim(r.Context())
	if errors.Is(err, claim.ErrCooldown) {
		resp := claimResponse{Balance: s.claims.Balance()}
		if next := s.claims.NextClaimAt(); !next.IsZero() {
			resp.NextClaimAt = next.UTC().Format(time.RFC3339)
		}
		writeJSONError(w, http.StatusTooManyRequests, "Faucet cooldown has not elapsed.", resp)
		return
	}
	if errors.Is(err, claim.ErrNotUnlocked) {
		writeJSONError(w, http.StatusConflict, "Lock ETH first to unlock the faucet.", nil)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Balance: bal})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		if _, err := s.claims.SyncBalance(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Balance *ledger.FluxBalance `json:"balance"`
		Syncing bool                `json:"syncing"`
	}{
		Balance: s.claims.Balance(),
		Syncing: s.claims.Syncing(),
	})
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Notices []notify.Notice `json:"notices"`
	}{Notices: s.notices.List()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.lock.Disconnect()
	s.claims.Disconnect()
	s.metrics.setUnlocked(false)
	w.WriteHeader(http.StatusNoContent)
}

// rejectMisconfigured answers feature actions with the standing
// configuration notice instead of letting them fail one by one.
func (s *Server) rejectMisconfigured(w http.ResponseWriter) bool {
	if len(s.configProblems) == 0 {
		return false
	}
	writeJSONError(w, http.StatusServiceUnavailable,
		fault.UserMessage(fault.Newf(fault.Configuration, "config", "invalid configuration")), nil)
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, httpStatusFor(err), fault.UserMessage(err), nil)
}

func httpStatusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.Configuration:
		return http.StatusServiceUnavailable
	case fault.WalletRejected, fault.SessionMismatch:
		return http.StatusConflict
	case fault.BackendUnavailable, fault.SchemaMissing:
		return http.StatusBadGateway
	case fault.VerificationTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string, extra any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]any{"error": message}
	if extra != nil {
		resp["detail"] = extra
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	chainInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.chainHealthFn != nil {
		start := time.Now()
		chainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.chainHealthFn(chainCtx); err != nil {
			chainInfo.Connected = false
			chainInfo.Error = err.Error()
			overallHealthy = false
		} else {
			chainInfo.Connected = true
			chainInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		chainInfo.Connected = true
	}

	ledgerInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.ledgerHealthFn != nil {
		ledgerCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.ledgerHealthFn(ledgerCtx); err != nil {
			ledgerInfo.Connected = false
			ledgerInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if len(s.configProblems) > 0 {
		status = "misconfigured"
		overallHealthy = false
	} else if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status         string      `json:"status"`
		Chain          interface{} `json:"chain"`
		Ledger         interface{} `json:"ledger"`
		ConfigProblems []string    `json:"config_problems,omitempty"`
	}{
		Status:         status,
		Chain:          chainInfo,
		Ledger:         ledgerInfo,
		ConfigProblems: s.configProblems,
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		next.ServeHTTP(w, r)
	})
}

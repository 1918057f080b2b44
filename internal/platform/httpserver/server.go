package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	votingledger "votingledger/contexts/governance/voting-ledger"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "votingledger/internal/platform/httpserver/docs"
)

type Server struct {
	mux    *http.ServeMux
	http   *http.Server
	logger *slog.Logger
	addr   string
	ledger votingledger.Module
}

func New(
	ledger votingledger.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		ledger: ledger,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed mux, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/rounds", s.handleCreateRound)
	s.mux.HandleFunc("GET /v1/rounds", s.handleListRounds)
	s.mux.HandleFunc("GET /v1/rounds/{round_id}", s.handleGetRound)
	s.mux.HandleFunc("GET /v1/rounds/{round_id}/voting-info", s.handleVotingInfo)
	s.mux.HandleFunc("POST /v1/rounds/{round_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("POST /v1/rounds/{round_id}/settle", s.handleSettleRound)

	s.mux.HandleFunc("GET /v1/treasury", s.handleTreasury)
	s.mux.HandleFunc("POST /v1/treasury/withdraw", s.handleWithdrawCommission)
	s.mux.HandleFunc("GET /v1/accounts/{address}/balance", s.handleBalance)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

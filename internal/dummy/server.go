package dummy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ServerConfig struct {
	Port int
	// Latency is the simulated upstream fetch delay of fetch-and-save.
	Latency time.Duration
	// ErrorRate is the share of fetch-and-save calls answered with 500
	// on top of genuine duplicate transactions.
	ErrorRate float64
	Log       zerolog.Logger
}

// Server is an in-memory stand-in for the payment service.
type Server struct {
	cfg   ServerConfig
	store *Store
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: cfg, store: NewStore()}
}

func (s *Server) Store() *Store {
	return s.store
}

// Handler serves the payment routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// 1. Latest payments, newest first
	mux.HandleFunc("GET /api/payments", func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, s.store.Latest(limit))
	})

	// 2. Everything stored so far
	mux.HandleFunc("GET /api/payments/all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.store.All())
	})

	// 3. One payment by id
	mux.HandleFunc("GET /api/payments/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid uuid format: "+id)
			return
		}
		p, err := s.store.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	// 4. Fetch from the upstream provider and persist
	mux.HandleFunc("POST /api/payments/fetch-and-save", func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Latency > 0 {
			select {
			case <-time.After(s.cfg.Latency):
			case <-r.Context().Done():
				return
			}
		}
		if s.cfg.ErrorRate > 0 && rand.Float64() < s.cfg.ErrorRate {
			writeError(w, http.StatusInternalServerError, "upstream fetch failed")
			return
		}

		p := RandomPayment(time.Now())
		if err := s.store.Save(p); err != nil {
			s.cfg.Log.Debug().Err(err).Msg("payment rejected")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, p)
	})

	return mux
}

// Start listens on cfg.Port and serves in the background. The caller owns
// shutdown of the returned server.
func Start(cfg ServerConfig) (*http.Server, error) {
	s := NewServer(cfg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dummy server: %w", err)
	}
	fmt.Printf("👻 Dummy payment service running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: GET /api/payments?limit=N, GET /api/payments/all, GET /api/payments/{id}, POST /api/payments/fetch-and-save")

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			cfg.Log.Error().Err(err).Msg("dummy server failed")
		}
	}()
	return server, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/zevbilling/zevbilling/pkg/billing"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/telemetry"
)

// Server handles the HTTP API for the shared-installation billing system. It
// orchestrates the billing engine against telemetry and storage.
type Server struct {
	engine  *billing.Engine
	storage storage.Database

	listenAddr string
	httpServer *http.Server

	billingWindow time.Duration
	serverName    string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(adapter telemetry.Adapter, db storage.Database) *Server {
	srv := &Server{
		engine:     billing.New(adapter),
		storage:    db,
		serverName: "zevbilling",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	billingWindow := lflag.Duration("billing-window", time.Hour, "Bucket size for billing calculations")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.billingWindow = *billingWindow
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/bills", s.handleOwnBills)
	apiMux.HandleFunc("GET /api/live/stats", s.handleLiveStats)
	apiMux.HandleFunc("GET /api/history", s.handleHistory)

	apiMux.HandleFunc("POST /api/admin/bills/generate", s.requireAdmin(s.handleGenerateBill))
	apiMux.HandleFunc("GET /api/admin/bills", s.requireAdmin(s.handleListBills))
	apiMux.HandleFunc("DELETE /api/admin/users/{userID}/bills/{billID}", s.requireAdmin(s.handleDeleteBill))
	apiMux.HandleFunc("GET /api/admin/profit", s.requireAdmin(s.handleProfit))
	apiMux.HandleFunc("GET /api/admin/settings", s.requireAdmin(s.handleGetSettings))
	apiMux.HandleFunc("PUT /api/admin/settings", s.requireAdmin(s.handleUpdateSettings))
	apiMux.HandleFunc("GET /api/admin/users", s.requireAdmin(s.handleListUsers))
	apiMux.HandleFunc("POST /api/admin/users", s.requireAdmin(s.handleCreateUser))
	apiMux.HandleFunc("PUT /api/admin/users/{userID}", s.requireAdmin(s.handleUpdateUser))
	apiMux.HandleFunc("DELETE /api/admin/users/{userID}", s.requireAdmin(s.handleDeleteUser))
	apiMux.HandleFunc("GET /api/admin/users/{userID}/mappings", s.requireAdmin(s.handleListMappings))
	apiMux.HandleFunc("POST /api/admin/users/{userID}/mappings", s.requireAdmin(s.handleCreateMapping))
	apiMux.HandleFunc("PUT /api/admin/users/{userID}/mappings/{mappingID}", s.requireAdmin(s.handleUpdateMapping))
	apiMux.HandleFunc("DELETE /api/admin/users/{userID}/mappings/{mappingID}", s.requireAdmin(s.handleDeleteMapping))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// parseTimeRange reads the start/end query parameters, defaulting to the
// previous calendar month.
func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		now := time.Now().UTC()
		end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := end.AddDate(0, -1, 0)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > 366*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed one year")
	}

	return start, end, nil
}

// rangeCacheHeaders caches closed historical ranges aggressively and live
// ranges briefly, matching how clients poll.
func rangeCacheHeaders(w http.ResponseWriter, end time.Time) {
	today := time.Now().Truncate(24 * time.Hour)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}

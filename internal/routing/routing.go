package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"timebox/pkg/credential"
	"timebox/pkg/handlers"
	"timebox/pkg/middleware"
	"timebox/pkg/session"
)

const (
	sessionPath     = "/{session_id:[a-zA-Z0-9-]+}"
	shutdownTimeout = 10 * time.Second
)

func NewRouter(store session.Store, acquirer credential.Acquirer, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Panic(logger))
	api.Use(middleware.UserID)

	InitRoutes(api, store, acquirer, logger)
	ServeFallback(r)
	return r
}

func InitRoutes(api *mux.Router, store session.Store, acquirer credential.Acquirer, logger *slog.Logger) {
	sessionHandler := handlers.NewSessionHandler(store, acquirer, logger)

	sessionsRouter := api.PathPrefix("/sessions").Subrouter()

	sessionsRouter.HandleFunc("", sessionHandler.Create).Methods("POST").Name("create")
	sessionsRouter.HandleFunc(sessionPath, sessionHandler.Get).Methods("GET")
	sessionsRouter.HandleFunc(sessionPath+"/validate", sessionHandler.Validate).Methods("GET")
	sessionsRouter.HandleFunc(sessionPath+"/emergency", sessionHandler.Emergency).Methods("POST")
	sessionsRouter.HandleFunc(sessionPath+"/deactivate", sessionHandler.Deactivate).Methods("POST")
	sessionsRouter.HandleFunc(sessionPath+"/credential", sessionHandler.Credential).Methods("GET")
}

func ServeFallback(r *mux.Router) {
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "message", "not found")
	})
}

// StartServer serves until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Println("\n\033[32m", "The server is running on "+addr, "\033[0m")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"whiteboard/internal/httpapi"
)

// ServeHTTP serves the board API and the websocket hub on addr until ctx is
// done, then drains in-flight requests.
func (a *App) ServeHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Listen
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(a.boards, a.hub).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SYNC] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

package coordinator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/BioHazard786/linkdrop/internal/config"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// OpenStore returns a SQLiteStore when path is set and a MemoryStore
// otherwise.
func OpenStore(path string) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLiteStore(path)
}

// Serve runs the coordination server on ln until ctx ends. It owns the
// store and closes it on return.
func Serve(ctx context.Context, ln net.Listener, opts *config.ServerOptions) error {
	store, err := OpenStore(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := NewHub(store, HubOptions{ShareURL: opts.ShareURL, RoomTTL: opts.RoomTTL})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go hub.Run(ctx, opts.SweepInterval)

	srv := &http.Server{
		Handler:           NewHandler(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logrus.WithFields(logrus.Fields{
		"function": "Serve",
		"addr":     ln.Addr().String(),
		"db":       opts.DBPath,
	}).Info("Coordination server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// ListenAndServe listens on opts.Addr and calls Serve.
func ListenAndServe(ctx context.Context, opts *config.ServerOptions) error {
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, opts)
}

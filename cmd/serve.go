package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				if envPort, convErr := strconv.Atoi(os.Getenv("PORT")); convErr == nil && envPort > 0 {
					port = envPort
				} else if state.cfg != nil {
					port = state.cfg.Server.Port
				}
			}
			return serve(cmd.Context(), state.app, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to server.port)")
	return cmd
}

func serve(ctx context.Context, a App, port int) error {
	logger := a.Logger()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

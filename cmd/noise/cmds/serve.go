package cmds

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/api"
	"github.com/liliang-cn/noise/internal/gateway"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway in front of the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	proxy := gateway.NewProxy(gateway.Config{
		BaseURL:        cfg.Ollama.BaseURL,
		ModelsPath:     cfg.Ollama.ModelsPath,
		ChatPath:       cfg.Ollama.ChatPath,
		ConnectTimeout: cfg.Ollama.ConnectTimeout,
	}, logger)

	router := api.SetupRouter(proxy, logger, api.RouterConfig{
		AllowOrigins: cfg.Server.AllowOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	// No write timeout: chat responses stream for as long as the model runs.
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting noise gateway",
			zap.String("address", cfg.Address()),
			zap.String("ollama", cfg.Ollama.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Failed to start server", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), durationOr(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited")
	return nil
}

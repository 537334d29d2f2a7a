// Package cmds holds the noise command line.
package cmds

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/client"
	"github.com/liliang-cn/noise/internal/config"
	"github.com/liliang-cn/noise/internal/logging"
	"github.com/liliang-cn/noise/internal/repository"
	"github.com/liliang-cn/noise/internal/retrieval"
)

// app carries what every subcommand needs once flags are parsed
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

// NewRootCommand builds the noise command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "noise",
		Short: "Chat with a local model and measure retrieval noise",
		Long: `noise runs a gateway in front of a local Ollama server, chats with it
using context gathered from semantic, vector and graph retrieval, and helps
label noisy retrieval results.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config file")

	root.AddCommand(
		newServeCommand(a),
		newModelsCommand(a),
		newChatCommand(a),
		newSearchCommand(a),
		newHistoryCommand(a),
		newLabelsCommand(a),
	)
	return root
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.Gateway.URL, a.cfg.Ollama.ConnectTimeout)
}

func (a *app) aggregator() *retrieval.Aggregator {
	rc := a.cfg.Retrieval
	httpClient := &http.Client{Timeout: rc.Timeout}
	return retrieval.NewAggregator(
		retrieval.NewHTTPSources(rc.SemanticURL, rc.VectorURL, rc.GraphURL, httpClient),
		a.logger,
		retrieval.WithMaxItems(rc.MaxItems),
		retrieval.WithMaxChars(rc.MaxChars),
	)
}

// openState opens the local state database. The returned func closes it.
func (a *app) openState() (*repository.StateRepository, func(), error) {
	db, err := repository.NewDB(a.cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state: %w", err)
	}
	st := repository.NewStateRepository(repository.NewKVRepository(db), a.logger)
	return st, func() { db.Close() }, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

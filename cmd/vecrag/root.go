package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	vecrag "github.com/hubenschmidt/go-vecrag"
	"github.com/hubenschmidt/go-vecrag/config"
	"github.com/hubenschmidt/go-vecrag/logging"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfgFile    string
	collection string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "vecrag",
		Short: "Vector similarity retrieval for RAG",
		Long: `vecrag stores text embeddings in PostgreSQL/pgvector or SQLite and
retrieves the nearest documents as context for a generation step.

Example usage:
  vecrag ensure                               # Create the configured collection
  vecrag index "El lago Titicaca es..."       # Embed and store texts
  vecrag query "¿Dónde está el lago?" -k 2    # Show nearest documents
  vecrag ask "¿Cuál es la capital?"           # Retrieve context and generate
  vecrag serve                                # Run the HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (YAML); VECRAG_* env vars override it")
	root.PersistentFlags().StringVarP(&c.collection, "collection", "c", "", "collection name (default from config)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newEnsureCmd(c),
		newIndexCmd(c),
		newQueryCmd(c),
		newAskCmd(c),
		newCountCmd(c),
	)
	return root
}

func (c *cli) load() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.collection != "" {
		cfg.Collection.Name = c.collection
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.log = log
	return nil
}

// app opens the configured store and providers. Callers must Close it.
func (c *cli) app(ctx context.Context, reg prometheus.Registerer) (*vecrag.App, error) {
	return vecrag.NewApp(ctx, c.cfg, c.log, reg)
}

package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/promptbook/internal/config"
	"github.com/csheth/promptbook/internal/library"
	"github.com/csheth/promptbook/internal/llm"
	"github.com/csheth/promptbook/internal/logging"
	"github.com/csheth/promptbook/internal/resolve"
	"github.com/csheth/promptbook/internal/tui"
)

// app is the runtime shared by the root command and its subcommands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	client   llm.Client
	llmErr   error
	store    *library.Store
	resolver *resolve.Web
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "promptbook:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "promptbook",
		Short:         "Browse, edit and run a library of LLM conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI(cmd.Context())
		},
	}
	config.AddFlags(root)
	root.AddCommand(
		newListCommand(a),
		newNewCommand(a),
		newModelsCommand(a),
		newRunCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger

	// A broken backend only matters once something generates.
	a.client, a.llmErr = llm.NewFromEnv(llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Logger:   logger,
	})
	if a.llmErr != nil {
		logger.Warn("llm disabled", zap.Error(a.llmErr))
	}

	defaultModel := cfg.Model
	if defaultModel == "" && a.client != nil {
		defaultModel = a.client.DefaultModel()
	}
	a.store = library.New(cfg.DataDir, defaultModel, logger)
	a.resolver = resolve.New(resolve.Options{Logger: logger})
	logger.Info("promptbook starting",
		zap.String("data_dir", cfg.DataDir),
		zap.String("provider", cfg.Provider),
		zap.String("config_file", cfg.File))
	return nil
}

func (a *app) runTUI(ctx context.Context) error {
	tuiConfig := tui.Config{
		Library:     a.store,
		Resolver:    a.resolver,
		PullMissing: a.cfg.PullMissing,
		Logger:      a.logger,
	}
	if a.client != nil {
		tuiConfig.LLM = a.client
	}
	if a.cfg.Watch {
		watcher, err := library.NewWatcher(a.store, 0)
		if err != nil {
			a.logger.Warn("library watch disabled", zap.Error(err))
		} else {
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			watcher.Start(watchCtx)
			defer watcher.Close()
			tuiConfig.Watcher = watcher
		}
	}

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if !a.cfg.NoAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(tui.New(tuiConfig), opts...)
	if _, err := program.Run(); err != nil {
		return errors.Wrap(err, "program error")
	}
	return nil
}

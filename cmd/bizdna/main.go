// Command bizdna runs the business assistant server and its maintenance
// tasks.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/api/mcp"
	"github.com/scrypster/bizdna/internal/assistant"
	"github.com/scrypster/bizdna/internal/backup"
	"github.com/scrypster/bizdna/internal/config"
	"github.com/scrypster/bizdna/internal/server"
	"github.com/scrypster/bizdna/pkg/types"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:          "bizdna",
		Short:        "bizdna - behavioral profiles and an AI assistant for business operators",
		SilenceUsage: true,
		Version:      version,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file (default $BIZDNA_CONFIG)")

	root.AddCommand(
		c.serveCmd(),
		c.importCmd(),
		c.refreshCmd(),
		c.sendCmd(),
		c.purgeCmd(),
		c.backupCmd(),
		c.mcpCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	if c.configPath == "" {
		return config.LoadConfig()
	}
	return config.Load(c.configPath)
}

// openApp builds a detached App for one-shot commands. The scheduler is
// never started outside serve.
func (c *cli) openApp() (*server.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Profile.SchedulerEnabled = false
	return c.build(cfg, server.Detached())
}

func (c *cli) build(cfg *config.Config, opts ...server.Option) (*server.App, error) {
	logger, err := server.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	store, err := server.OpenStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app, err := server.New(cfg, store, logger, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func closeApp(app *server.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		app.Logger.Warn("shutdown", zap.Error(err))
	}
	_ = app.Logger.Sync()
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, event stream and profile refresher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			app, err := c.build(cfg)
			if err != nil {
				return err
			}
			defer closeApp(app)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr, err := app.Start(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.out, "bizdna running at http://%s\n", addr)

			<-ctx.Done()
			app.Logger.Info("shutting down")
			return nil
		},
	}
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve bizdna tools to an MCP client over stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.openApp()
			if err != nil {
				return err
			}
			defer closeApp(app)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// zap writes to stderr, keeping stdout for protocol frames.
			srv := mcp.NewServer(app.Assistant, app.Profiles, app.Memories, mcp.WithLogger(app.Logger), mcp.WithVersion(version))
			return mcp.NewStdioTransport(srv, cmd.InOrStdin(), c.out, app.Logger).Serve(ctx)
		},
	}
}

// importFile is the document accepted by the import command.
type importFile struct {
	Identity types.OperatorIdentity `json:"identity"`
	Scope    string                 `json:"scope"`
	Records  []types.RawRecord      `json:"records"`
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load an operator identity and interaction records from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc importFile
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if doc.Identity.OperatorID == "" {
				return errors.New("identity.operator_id is required")
			}

			app, err := c.openApp()
			if err != nil {
				return err
			}
			defer closeApp(app)

			ctx := cmd.Context()
			if err := app.Store.PutIdentity(ctx, &doc.Identity); err != nil {
				return fmt.Errorf("store identity: %w", err)
			}
			n, err := app.Store.PutRecords(ctx, doc.Identity.OperatorID, doc.Scope, doc.Records)
			if err != nil {
				return fmt.Errorf("store records: %w", err)
			}
			_, _ = fmt.Fprintf(c.out, "imported %d of %d records for %s\n", n, len(doc.Records), doc.Identity.OperatorID)
			return nil
		},
	}
}

func (c *cli) refreshCmd() *cobra.Command {
	var operatorID, scope string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild an operator's behavioral profile and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.openApp()
			if err != nil {
				return err
			}
			defer closeApp(app)

			p, err := app.Assistant.ForceRefreshProfile(cmd.Context(), operatorID, scope)
			if err != nil {
				return err
			}
			return c.printJSON(p)
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator", "", "operator ID")
	cmd.Flags().StringVar(&scope, "scope", "", "optional profile scope")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func (c *cli) sendCmd() *cobra.Command {
	var req assistant.SendRequest
	var provider, model string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message to the assistant and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp()
			if err != nil {
				return err
			}
			defer closeApp(app)

			req.Message = args[0]
			if provider != "" {
				req.Provider = &types.ProviderConfig{Provider: provider, Model: model}
			}
			res, err := app.Assistant.Send(cmd.Context(), req)
			if err != nil {
				var te *assistant.TurnError
				if errors.As(err, &te) {
					return fmt.Errorf("%s (conversation %s): %w", te.FailureLabel(), te.ConversationID, err)
				}
				return err
			}
			return c.printJSON(res)
		},
	}
	cmd.Flags().StringVar(&req.OperatorID, "operator", "", "operator ID")
	cmd.Flags().StringVar(&req.ConversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().StringVar(&req.Scope, "scope", "", "optional profile scope")
	cmd.Flags().StringVar(&provider, "provider", "", "override the default provider")
	cmd.Flags().StringVar(&model, "model", "", "model for --provider")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func (c *cli) purgeCmd() *cobra.Command {
	var operatorID string
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every profile, memory and conversation of an operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to purge without --yes")
			}
			app, err := c.openApp()
			if err != nil {
				return err
			}
			defer closeApp(app)

			if err := app.DeleteOperatorData(cmd.Context(), operatorID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.out, "purged %s\n", operatorID)
			return nil
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator", "", "operator ID")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func (c *cli) backupCmd() *cobra.Command {
	var dir string
	var keep int

	// sqliteOnly resolves the database and backup directory, rejecting
	// engines that manage their own backups.
	sqliteOnly := func() (dbPath, backupDir string, logger *zap.Logger, err error) {
		cfg, err := c.loadConfig()
		if err != nil {
			return "", "", nil, err
		}
		if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "" {
			return "", "", nil, fmt.Errorf("backup supports the sqlite engine only, not %q", cfg.Storage.Engine)
		}
		logger, err = server.NewLogger(cfg.Log)
		if err != nil {
			return "", "", nil, err
		}
		backupDir = dir
		if backupDir == "" {
			backupDir = filepath.Join(cfg.Storage.DataPath, "backups")
		}
		return server.SQLitePath(cfg.Storage), backupDir, logger, nil
	}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite store and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath, backupDir, logger, err := sqliteOnly()
			if err != nil {
				return err
			}
			res, err := backup.Snapshot(cmd.Context(), dbPath, backupDir, backup.Options{Keep: keep, Logger: logger})
			if err != nil {
				return err
			}
			return c.printJSON(res)
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "backup directory (default <data_path>/backups)")
	cmd.Flags().IntVar(&keep, "keep", 24, "snapshots to keep, 0 keeps all")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, backupDir, _, err := sqliteOnly()
			if err != nil {
				return err
			}
			snaps, err := backup.List(backupDir)
			if err != nil {
				return err
			}
			return c.printJSON(snaps)
		},
	}, &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Replace the SQLite store with a verified snapshot; the server must be stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _, _, err := sqliteOnly()
			if err != nil {
				return err
			}
			if err := backup.Restore(cmd.Context(), args[0], dbPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.out, "restored %s from %s\n", dbPath, args[0])
			return nil
		},
	})
	return cmd
}

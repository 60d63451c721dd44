package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snapmark/snapmark/internal/config"
	"github.com/snapmark/snapmark/internal/daemon"
	"github.com/snapmark/snapmark/internal/gui"
	"github.com/snapmark/snapmark/internal/logger"
	"github.com/snapmark/snapmark/internal/protocol"
	"github.com/snapmark/snapmark/internal/transport"
)

var (
	cfg        config.Config
	configFlag string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &windowFlags{}
	root := &cobra.Command{
		Use:   "snapmark [filename]",
		Short: "snapmark — screenshot annotation tool",
		Long:  "Annotate screenshots, standalone or through a per-user daemon that keeps windows warm.",
		Args:  cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := flags.filename
			if len(args) == 1 {
				filename = args[0]
			}
			if filename == "" {
				return cmd.Help()
			}
			req, err := flags.request(cmd, filename)
			if err != nil {
				return err
			}
			return runStandalone(req)
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: user config dir)")
	flags.register(root)

	root.AddCommand(daemonCmd(), showCmd())
	return root
}

func loadConfig() error {
	path := configFlag
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}
	var err error
	if cfg, err = config.Load(path); err != nil {
		return err
	}
	return logger.Init(cfg.Logging.Level, cfg.Logging.File)
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the annotation daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFlag
			if path == "" {
				path, _ = config.DefaultPath()
			}
			return daemon.Run(daemon.Options{
				Config:     cfg,
				ConfigPath: path,
				Toolkit:    gui.NewHeadless(),
			})
		},
	}
}

func showCmd() *cobra.Command {
	flags := &windowFlags{}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Ask the daemon to open an annotation window",
		Long:  "Sends the request to the running daemon; without one, opens the window standalone.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := flags.filename
			if len(args) == 1 {
				filename = args[0]
			}
			if filename == "" {
				return fmt.Errorf("a filename is required (use - for stdin)")
			}
			req, err := flags.request(cmd, filename)
			if err != nil {
				return err
			}

			client := transport.NewClient(config.SocketPath())
			if client.IsDaemonRunning() {
				resp, err := client.SendContext(cmd.Context(), req)
				switch {
				case err != nil:
					logger.Warn("daemon unreachable, opening standalone", "error", err)
				case resp.Status == protocol.StatusOk:
					logger.Info("window opened", "window_id", resp.WindowID)
					return nil
				default:
					logger.Warn("daemon refused request, opening standalone", "reason", resp.Message)
				}
			} else {
				logger.Debug("no daemon running, opening standalone")
			}
			return runStandalone(req)
		},
	}
	flags.register(cmd)
	return cmd
}

func runStandalone(req protocol.Request) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return daemon.RunStandalone(ctx, cfg, gui.NewHeadless(), req)
}

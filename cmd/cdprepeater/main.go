package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cdprepeater/internal/config"
	"cdprepeater/internal/logger"
	"cdprepeater/pkg/api"
)

// main 命令行入口
func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cdprepeater",
		Short:         "Capture and repeat browser requests over the DevTools protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	return root
}

// runFlags 命令行参数，非零值覆盖配置文件
type runFlags struct {
	configPath   string
	devtools     string
	historyLimit int
	logLevel     string
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to a running browser and start intercepting",
		Long: `Connect to a browser started with --remote-debugging-port, open a
monitored blank tab, record every request it makes and serve the control
panel and UI websocket.

Examples:
  cdprepeater run
  cdprepeater run --devtools http://127.0.0.1:9333 --history-limit 1000
  cdprepeater run --config cdprepeater.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&f.devtools, "devtools", "", "browser debugging endpoint, e.g. http://127.0.0.1:9222")
	cmd.Flags().IntVar(&f.historyLimit, "history-limit", 0, "maximum number of recorded requests")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig(f runFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.devtools != "" {
		cfg.DevTools.URL = f.devtools
	}
	if f.historyLimit != 0 {
		cfg.History.Limit = f.historyLimit
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Writer:     cfg.Log.Writer,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := api.NewService(cfg, log)
	if err != nil {
		log.Err(err, "初始化失败")
		return err
	}
	log.Info("启动", "version", cfg.Version, "devtools", cfg.DevTools.URL)
	if err := svc.Run(ctx); err != nil {
		log.Err(err, "运行失败")
		return err
	}
	log.Info("已退出")
	return nil
}

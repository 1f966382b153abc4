package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"upbit-pnl/internal/config"
	"upbit-pnl/internal/database"
	"upbit-pnl/internal/logger"
	"upbit-pnl/internal/tracker"
	"upbit-pnl/internal/upbit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string

	cfg config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pnl",
	Short: "Realized profit and loss for Upbit order history",
	Long: `pnl fetches completed orders from the Upbit Open API, stores them locally
and computes FIFO realized profit and loss per day, month or year.

API keys are read from config.yml (upbit.access_key, upbit.secret_key) or from
UPBIT_OPEN_API_ACCESS_KEY and UPBIT_OPEN_API_SECRET_KEY, which may be placed in
a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}

		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
		log, err = logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
		if err != nil {
			return fmt.Errorf("could not initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute adds all child commands to the root command and runs it until
// completion or an interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs", "directory containing config.yml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with API keys")
}

// newEngine opens the order store and, unless offline, an authenticated
// Upbit client.
func newEngine(offline bool) (*tracker.Engine, error) {
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if offline {
		return tracker.NewEngine(log, &cfg, nil, db), nil
	}
	if err := cfg.Upbit.Validate(); err != nil {
		return nil, err
	}
	client := upbit.NewRestClient(&cfg.Upbit, log)
	return tracker.NewEngine(log, &cfg, client, db), nil
}

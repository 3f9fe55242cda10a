package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"drivetestWatcher/internal/logging"
	"drivetestWatcher/internal/runner"
	"drivetestWatcher/internal/telegram"
	"drivetestWatcher/pkg/config"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	flagInterval time.Duration
	flagHeadless bool
	flagNoNotify bool
)

var rootCmd = &cobra.Command{
	Use:           "watcher",
	Short:         "Driving test slot watcher",
	Long:          "Watches the Queensland Transport driving test booking flow for appointment slots within the next fortnight and alerts via Telegram.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the availability check",
	RunE:  runCheck,
}

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a test notification and exit",
	RunE:  runNotifyTest,
}

func init() {
	checkCmd.Flags().DurationVar(&flagInterval, "interval", 0, "re-run the check at this interval (0 runs once)")
	checkCmd.Flags().BoolVar(&flagHeadless, "headless", true, "run the browser headless")
	checkCmd.Flags().BoolVar(&flagNoNotify, "no-notify", false, "log alerts instead of sending them")
	rootCmd.AddCommand(checkCmd, notifyTestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs logging before any command
// body runs.
func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(os.Getenv("DTW_ENV"))

	if cmd.Flags().Changed("headless") {
		cfg.Headless = flagHeadless
	}
	if flagNoNotify {
		cfg.NoNotify = true
		logger.Info().Msg("notifications disabled (--no-notify)")
	}
	cfg.Interval = flagInterval
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	logger.Info().
		Int("locations", len(cfg.Locations)).
		Dur("interval", cfg.Interval).
		Msg("driving test watcher starting")

	notifier := telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID, cfg.NoNotify, logger)
	r := runner.New(cfg, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Watch(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	notifier := telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID, cfg.NoNotify, logger)
	if err := notifier.Send(context.Background(), telegram.TestMessage()); err != nil {
		return fmt.Errorf("notification test failed: %w", err)
	}
	logger.Info().Msg("test notification sent")
	return nil
}

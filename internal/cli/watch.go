package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orchestrate/jarvis/internal/config"
	"github.com/orchestrate/jarvis/internal/notify"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream queue-change notifications",
	Long: `Subscribes to the configured Redis channel and prints one JSON line per
queue change until interrupted. Requires notify.redis_addr.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := config.ResolveRoot(rootFlag)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Notify.RedisAddr == "" {
		return errors.New("notifications are disabled: set notify.redis_addr")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := notify.NewRedis(ctx, cfg.Notify.RedisAddr, cfg.Notify.RedisPassword, cfg.Notify.RedisDB, cfg.Notify.Channel)
	if err != nil {
		return err
	}
	defer r.Close()

	events, err := r.Subscribe(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replysmith/replysmith/internal/config"
	"github.com/replysmith/replysmith/internal/core"
	"github.com/replysmith/replysmith/internal/core/store"
	"github.com/replysmith/replysmith/internal/output"
)

var (
	usageListJSON bool
	usageResetDay string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and manage stored per-IP usage records",
}

// openUsageStore connects to the configured store backend. Only the redis
// backend is reachable from the CLI; memory records live inside the server
// process and are served by its admin endpoint instead.
func openUsageStore() (*store.RedisStore, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if cfg.Limits.Store != "redis" {
		return nil, fmt.Errorf("usage commands need the redis store (limits.store is %q); query the running server's /admin/usage endpoint instead", cfg.Limits.Store)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return store.NewRedisStore(client), nil
}

var usageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored usage records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openUsageStore()
		if err != nil {
			return err
		}

		entries, err := db.List(cmd.Context())
		if err != nil {
			return err
		}

		if usageListJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		if len(entries) == 0 {
			fmt.Println("(no stored usage records)")
			return nil
		}

		fmt.Println(output.UsageTable(entries))
		return nil
	},
}

var usageResetCmd = &cobra.Command{
	Use:   "reset <ip>",
	Short: "Reset the usage record for an IP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openUsageStore()
		if err != nil {
			return err
		}

		day := usageResetDay
		if day == "" {
			day = core.DayKey(time.Now())
		}

		if err := db.Reset(cmd.Context(), args[0], day); err != nil {
			return err
		}

		fmt.Printf("Reset usage for %s on %s\n", args[0], day)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageListCmd)
	usageCmd.AddCommand(usageResetCmd)

	usageListCmd.Flags().BoolVar(&usageListJSON, "json", false, "Output JSON instead of a table")
	usageResetCmd.Flags().StringVar(&usageResetDay, "day", "", "UTC day to reset (yyyy-mm-dd, default today)")
}

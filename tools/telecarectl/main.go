// Command telecarectl is the operator CLI: schema migrations, doctor
// onboarding and pseudonym generation.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/repromitra/telehealth/libs/db"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "telecarectl",
		Short:         "Operate the ReproMitra telehealth backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile == "" {
				return nil
			}
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", configFile, err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "optional config file (yaml, json, toml or env)")
	flags.String("database-url", "", "Postgres connection string (env TELECARE_DATABASE_URL or DATABASE_URL)")
	flags.Duration("timeout", 30*time.Second, "overall command timeout")

	v.SetEnvPrefix("TELECARE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlag("database-url", flags.Lookup("database-url"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = v.BindEnv("database-url", "TELECARE_DATABASE_URL", "DATABASE_URL")

	root.AddCommand(migrateCmd(v))
	root.AddCommand(doctorsCmd(v))
	root.AddCommand(pseudonymCmd())
	return root
}

// withPool opens the database named by the resolved configuration and runs fn
// under the command timeout.
func withPool(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, pool *db.Pool) error) error {
	dbURL := strings.TrimSpace(v.GetString("database-url"))
	if dbURL == "" {
		return fmt.Errorf("database url is required (--database-url or TELECARE_DATABASE_URL)")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := v.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pool)
}

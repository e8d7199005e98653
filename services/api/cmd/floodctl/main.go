package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"floodwatch/internal/util"
	"floodwatch/pkg/reconcile"
	"floodwatch/services/api/internal/app"
	"floodwatch/services/api/internal/bootstrap"
	"floodwatch/services/api/internal/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "floodctl",
		Short:         "Operator commands for the floodwatch API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $FLOODWATCH_CONFIG or config.yaml)")

	rootCmd.AddCommand(seedAdminCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(runsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withRuntime loads config, builds dependencies and runs fn.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := util.InitLogger(cfg.LogLevel)
	ctx := util.ContextWithLogger(cmd.Context(), logger)
	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func seedAdminCmd() *cobra.Command {
	var in app.SeedAdminInput
	var allowNonDev bool
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or reset an admin account",
		Long: `Create the admin account, or reset its name, password and role when the
email already exists. Outside development it refuses to run unless
--allow-non-development is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := seedAllowed(rt.Config, allowNonDev); err != nil {
					return err
				}
				user, created, err := rt.App.EnsureAdmin(ctx, in)
				if err != nil {
					return fmt.Errorf("seed admin: %w", err)
				}
				verb := "updated"
				if created {
					verb = "created"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s: %s (%s)\n", verb, user.Email, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name (default Admin)")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email (default admin@flood.lk)")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (default admin123)")
	cmd.Flags().BoolVar(&allowNonDev, "allow-non-development", false, "permit seeding when environment is not development")
	return cmd
}

func seedAllowed(cfg config.FileConfig, allow bool) error {
	if cfg.IsDevelopment() || allow {
		return nil
	}
	env := cfg.Environment
	if env == "" {
		env = "unset"
	}
	return fmt.Errorf("seed-admin is disabled in environment %q; pass --allow-non-development to override", env)
}

func syncCmd() *cobra.Command {
	var mock bool
	var collection string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile floods and shelters from the government feed",
		Example: `  floodctl sync
  floodctl sync --collection shelters
  floodctl sync --mock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				ctx = reconcile.WithTrigger(ctx, reconcile.TriggerCLI)
				var summary reconcile.Summary
				switch {
				case mock:
					summary = rt.App.SyncGovData(ctx, true)
				case collection == "floods":
					summary = single(rt.Engine.SyncFloods(ctx))
				case collection == "shelters":
					summary = single(rt.Engine.SyncShelters(ctx))
				case collection == "all" || collection == "":
					summary = rt.App.SyncGovData(ctx, false)
				default:
					return fmt.Errorf("unknown collection %q (want floods, shelters or all)", collection)
				}
				if err := printJSON(cmd, summary); err != nil {
					return err
				}
				if !summary.Success {
					return fmt.Errorf("sync failed: %s", summary.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&mock, "mock", false, "load the built-in demo dataset instead of calling the feed")
	cmd.Flags().StringVar(&collection, "collection", "all", "floods, shelters or all")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent sync history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				runs, err := rt.App.SyncRuns(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, runs)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func single(res reconcile.Result) reconcile.Summary {
	return reconcile.Summary{Success: res.Success, Message: res.Message, Results: []reconcile.Result{res}}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

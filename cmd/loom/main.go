// Command loom applies and reverts SQL-file migrations against the
// database named by a YAML config file or LOOM_* environment variables.
//
// Migrations live in a directory of "<name>.up.sql"/"<name>.down.sql"
// pairs; names sort in application order, so the conventional timestamp
// prefix keeps them ordered.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weavedb/loom/dialect"
	entsql "github.com/weavedb/loom/dialect/sql"
	"github.com/weavedb/loom/migrate"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	// configFile is set by the --config flag.
	configFile string

	// migrationsDir holds the *.up.sql/*.down.sql pairs.
	migrationsDir string

	// steps is the number of migrations a rollback reverts.
	steps int

	drv    dialect.Driver
	runner *migrate.Runner
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "loom manages database schema migrations",
	Long: `loom applies and reverts ordered SQL migrations, tracking the applied
set in a ledger table so repeated runs are no-ops and rollbacks revert
in strict reverse order of application.`,
	PersistentPreRunE: initRunner,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if drv != nil {
			return drv.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: loom.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding *.up.sql/*.down.sql files")
	rollbackCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(freshCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("loom v0.1.0")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show each migration with its applied batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := runner.Status(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tAPPLIED\tBATCH")
		for _, s := range statuses {
			applied, batch := "no", "-"
			if s.Applied {
				applied, batch = "yes", fmt.Sprint(s.Batch)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, applied, batch)
		}
		return w.Flush()
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ran, err := runner.Run(cmd.Context())
		for _, name := range ran {
			fmt.Println("applied:", name)
		}
		if err != nil {
			return err
		}
		if len(ran) == 0 {
			fmt.Println("nothing to migrate")
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the most recently applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		reverted, err := runner.Rollback(cmd.Context(), steps)
		for _, name := range reverted {
			fmt.Println("reverted:", name)
		}
		if err != nil {
			return err
		}
		if len(reverted) == 0 {
			fmt.Println("nothing to roll back")
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Revert every applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		reverted, err := runner.Reset(cmd.Context())
		for _, name := range reverted {
			fmt.Println("reverted:", name)
		}
		return err
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Revert every migration, then re-apply all of them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runner.Refresh(cmd.Context())
	},
}

var freshCmd = &cobra.Command{
	Use:   "fresh",
	Short: "Drop all tables and re-run every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runner.Fresh(cmd.Context())
	},
}

// initRunner loads config, opens the driver and registers the
// migration files.
func initRunner(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	v := viper.New()
	v.SetEnvPrefix("LOOM")
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("loom")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine when the env carries the settings.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	name := v.GetString("dialect")
	dsn := v.GetString("dsn")
	if name == "" || dsn == "" {
		return fmt.Errorf("dialect and dsn must be set via config file or LOOM_DIALECT/LOOM_DSN")
	}
	d, err := entsql.Open(name, dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	drv = d
	runner = migrate.NewRunner(drv, migrate.WithPrefix(v.GetString("prefix")))
	migrations, err := migrate.LoadDir(migrationsDir)
	if err != nil {
		return err
	}
	runner.Register(migrations...)
	return nil
}

// Command tb administers a taskboard store directly: users, tasks, the
// activity feed and the action log chain.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/logging"
	"taskboard/pkg/task"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tb:", err)
		os.Exit(1)
	}
}

type app struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "tb",
		Short:         "Taskboard admin tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(a.cfgFile, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file")
	pf.String("store.backend", "", "store backend: memory, postgres or sqlite")
	pf.String("store.database_url", "", "postgres connection string")
	pf.String("store.sqlite_path", "", "sqlite database file")

	root.AddCommand(
		a.userCmd(),
		a.taskCmd(),
		a.activityCmd(),
		a.auditCmd(),
		a.statusCmd(),
		a.configCmd(),
	)
	return root
}

// open connects to the configured store. The memory backend starts empty
// on every run, so tb warns about it.
func (a *app) open(ctx context.Context) (*db.Backend, error) {
	if a.cfg.Store.Backend == config.BackendMemory {
		fmt.Fprintln(os.Stderr, "warning: memory backend selected; changes are not persisted")
	}
	return db.Open(ctx, a.cfg.Store, logging.Nop())
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			tasks, err := b.Tasks.CountWhere(ctx, task.Filter{})
			if err != nil {
				return err
			}
			users, err := b.Users.Count(ctx)
			if err != nil {
				return err
			}
			actions, err := b.Actions.Count(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"backend": b.Name,
				"tasks":   tasks,
				"users":   users,
				"actions": actions,
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

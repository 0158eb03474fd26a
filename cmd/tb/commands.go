package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"taskboard/pkg/task"
)

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <username>",
		Short: "Register a user (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer b.Close()
			u, err := b.Users.Register(ctx, args[0])
			if err != nil {
				return fmt.Errorf("register user: %w", err)
			}
			return printJSON(u)
		},
	})

	var format string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer b.Close()
			users, err := b.Users.List(ctx)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			if format != "short" {
				return printJSON(users)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\tjoined %s\n", u.ID, u.Username, humanize.Time(u.CreatedAt))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&format, "format", "json", "output format: json or short")
	cmd.AddCommand(list)
	return cmd
}

func (a *app) taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Inspect tasks"}

	var (
		status string
		limit  int
		format string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := task.Filter{Limit: limit}
			if status != "" {
				s := task.Status(status)
				if !s.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
				f.Statuses = []task.Status{s}
			}
			b, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer b.Close()
			tasks, err := b.Tasks.FindMany(ctx, f)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			if format != "short" {
				return printJSON(tasks)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, t := range tasks {
				assignee := t.AssignedUser
				if assignee == "" {
					assignee = "-"
				}
				fmt.Fprintf(tw, "%s\t%-11s\t%-6s\tv%d\t%s\t%s\n", t.ID, t.Status, t.Priority, t.Version, assignee, t.Title)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")
	list.Flags().IntVar(&limit, "limit", 0, "maximum tasks to show (0 for all)")
	list.Flags().StringVar(&format, "format", "json", "output format: json or short")
	cmd.AddCommand(list)
	return cmd
}

func (a *app) activityCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if limit <= 0 {
				limit = a.cfg.Activity.DefaultLimit
			}
			b, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			entries, err := b.Actions.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("recent activity: %w", err)
			}
			users, err := b.Users.List(ctx)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			names := make(map[string]string, len(users))
			for _, u := range users {
				names[u.ID] = u.Username
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				who, ok := names[e.UserID]
				if !ok {
					who = e.UserID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.Time(e.Timestamp), who, e.Action, e.Details)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of entries (default activity.default_limit)")
	return cmd
}

func (a *app) auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Action log maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the action log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer b.Close()
			n, err := b.Actions.Count(ctx)
			if err != nil {
				return err
			}
			if err := b.Actions.VerifyChain(ctx); err != nil {
				return fmt.Errorf("chain broken: %w", err)
			}
			fmt.Printf("chain intact: %s entries\n", humanize.Comma(int64(n)))
			return nil
		},
	})
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(redact(*a.cfg))
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	})
	return cmd
}

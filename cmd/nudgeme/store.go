package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/pkg/app"
	"github.com/spf13/cobra"
)

// withLocal opens the local stores around fn.
func withLocal(cmd *cobra.Command, fn func(*app.Local) error) (err error) {
	local, err := app.OpenLocal(runParams(cmd))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, local.Close())
	}()
	return fn(local)
}

func confirmed(cmd *cobra.Command, what string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return nil
	}
	return fmt.Errorf("refusing to %s without --yes", what)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit stored memories",
		Long:  "Inspect and edit stored memories. Stop the daemon first; it overwrites local edits on its next save.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f memory.Filter
			if c, _ := cmd.Flags().GetString("category"); c != "" {
				f.Category = memory.ParseCategory(c)
			}
			f.Tag, _ = cmd.Flags().GetString("tag")
			f.Query, _ = cmd.Flags().GetString("query")
			f.Limit, _ = cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			return withLocal(cmd, func(l *app.Local) error {
				records := l.Memories.List(cmd.Context(), f)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				return printRecords(cmd.OutOrStdout(), records)
			})
		},
	}
	list.Flags().String("category", "", "Only this category")
	list.Flags().String("tag", "", "Only records with this tag")
	list.Flags().StringP("query", "q", "", "Substring to search for")
	list.Flags().IntP("limit", "n", 0, "Maximum number of records")
	list.Flags().Bool("json", false, "Print JSON")

	add := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.TrimSpace(strings.Join(args, " "))
			if content == "" {
				return errors.New("content must not be empty")
			}
			category, _ := cmd.Flags().GetString("category")
			tags, _ := cmd.Flags().GetStringSlice("tag")

			return withLocal(cmd, func(l *app.Local) error {
				rec := l.Memories.Append(cmd.Context(), content, memory.ParseCategory(category), tags)
				fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
				return nil
			})
		},
	}
	add.Flags().String("category", string(memory.CategoryGeneral), "Category")
	add.Flags().StringSlice("tag", nil, "Tag (repeatable)")

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete memories by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(l *app.Local) error {
				var errs []error
				for _, id := range args {
					if err := l.Memories.Delete(cmd.Context(), id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
					}
				}
				return errors.Join(errs...)
			})
		},
	}

	wipe := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := confirmed(cmd, "clear all memories"); err != nil {
				return err
			}
			return withLocal(cmd, func(l *app.Local) error {
				n := l.Memories.Count()
				l.Memories.Clear(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d memories\n", n)
				return nil
			})
		},
	}
	wipe.Flags().BoolP("yes", "y", false, "Confirm deletion")

	cmd.AddCommand(list, add, del, wipe)
	return cmd
}

func printRecords(w io.Writer, records []memory.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tCREATED\tTAGS\tCONTENT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Category, r.CreatedAt.Local().Format(time.DateTime), strings.Join(r.Tags, ","), r.Content)
	}
	return tw.Flush()
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and delete conversation sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withLocal(cmd, func(l *app.Local) error {
				sessions := l.Conversations.ListSessions()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), sessions)
				}
				active, _ := l.Conversations.Active()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUPDATED\tMESSAGES\tTITLE")
				for _, s := range sessions {
					title := s.Title
					if s.ID == active.ID {
						title += " (active)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.UpdatedAt.Local().Format(time.DateTime), len(s.Messages), title)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().Bool("json", false, "Print JSON")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(l *app.Local) error {
				s, err := l.Conversations.Get(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n\n", s.Title)
				for _, m := range s.Messages {
					fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format(time.DateTime), m.Role, m.Content)
				}
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete sessions by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(l *app.Local) error {
				var errs []error
				for _, id := range args {
					if err := l.Conversations.DeleteSession(id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
					}
				}
				return errors.Join(errs...)
			})
		},
	}

	wipe := &cobra.Command{
		Use:   "clear",
		Short: "Delete every session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := confirmed(cmd, "clear all sessions"); err != nil {
				return err
			}
			return withLocal(cmd, func(l *app.Local) error {
				n := l.Conversations.Count()
				l.Conversations.ClearAll()
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sessions\n", n)
				return nil
			})
		},
	}
	wipe.Flags().BoolP("yes", "y", false, "Confirm deletion")

	cmd.AddCommand(list, show, del, wipe)
	return cmd
}

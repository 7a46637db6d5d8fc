package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/chattree/internal/canvas"
	"github.com/HendryAvila/chattree/internal/notegraph"
)

var (
	noteParents []string
	noteRole    string
	noteSelect  bool
	noteUnlink  bool
	noteLimit   int
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Edit and inspect the canvas",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a note, optionally continuing other notes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *canvas.Store) error {
			n, err := store.AddNote(ctx, canvas.AddParams{
				Text:    strings.Join(args, " "),
				Role:    notegraph.Role(noteRole),
				Parents: noteParents,
			})
			if err != nil {
				return err
			}
			if noteSelect {
				if err := store.Select(ctx, n.ID()); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.ID())
			return nil
		})
	},
}

var noteLinkCmd = &cobra.Command{
	Use:   "link <child-id> <parent-id>",
	Short: "Make a note continue another one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *canvas.Store) error {
			if noteUnlink {
				return store.Disconnect(ctx, args[0], args[1])
			}
			return store.Connect(ctx, args[0], args[1])
		})
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a note with its parents and children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *canvas.Store) error {
			n, err := store.GetNote(ctx, args[0])
			if err != nil {
				return err
			}
			parents, err := n.Parents(ctx)
			if err != nil {
				return err
			}
			children, err := store.Children(ctx, n.ID())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printRecord(w, n.Record())
			for _, p := range parents {
				fmt.Fprintf(w, "  parent %s\n", p.ID())
			}
			for _, c := range children {
				fmt.Fprintf(w, "  child  %s\n", c.ID())
			}
			fmt.Fprintf(w, "\n%s\n", n.Text())
			return nil
		})
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *canvas.Store) error {
			notes, err := store.ListNotes(ctx, noteLimit)
			if err != nil {
				return err
			}
			for _, n := range notes {
				printRecord(cmd.OutOrStdout(), n.Record())
			}
			return nil
		})
	},
}

var noteSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over note text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *canvas.Store) error {
			results, err := store.Search(ctx, strings.Join(args, " "), noteLimit)
			if err != nil {
				return err
			}
			for _, r := range results {
				printRecord(cmd.OutOrStdout(), r.Record)
			}
			return nil
		})
	},
}

var noteSelectCmd = &cobra.Command{
	Use:   "select [id...]",
	Short: "Replace the selection (no ids clears it)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *canvas.Store) error {
			return store.Select(ctx, args...)
		})
	},
}

var noteExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the whole canvas as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *canvas.Store) error {
			snap, err := store.Export(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		})
	},
}

func init() {
	noteAddCmd.Flags().StringSliceVarP(&noteParents, "parent", "p", nil, "id of a note this one continues (repeatable)")
	noteAddCmd.Flags().StringVar(&noteRole, "role", "user", "user or assistant")
	noteAddCmd.Flags().BoolVar(&noteSelect, "select", false, "select the new note")
	noteLinkCmd.Flags().BoolVar(&noteUnlink, "unlink", false, "remove the edge instead")
	noteListCmd.Flags().IntVarP(&noteLimit, "limit", "n", 20, "maximum notes")
	noteSearchCmd.Flags().IntVarP(&noteLimit, "limit", "n", 20, "maximum notes")

	noteCmd.AddCommand(noteAddCmd, noteLinkCmd, noteShowCmd, noteListCmd, noteSearchCmd, noteSelectCmd, noteExportCmd)
}

// withStore opens the canvas for one command.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *canvas.Store) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store)
}

func openStore() (*canvas.Store, error) {
	cfg := canvas.DefaultConfig()
	if settings.DataDir != "" {
		cfg.DataDir = settings.DataDir
	}
	store, err := canvas.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening canvas: %w", err)
	}
	return store, nil
}

func printRecord(w io.Writer, r canvas.Record) {
	first, _, _ := strings.Cut(r.Text, "\n")
	if len(first) > 60 {
		first = first[:57] + "..."
	}
	fmt.Fprintf(w, "%s  %-9s  %s\n", r.ID, r.Role, first)
}

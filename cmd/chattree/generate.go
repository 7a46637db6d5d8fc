package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/chattree/internal/canvas"
	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/generate"
	"github.com/HendryAvila/chattree/internal/notegraph"
)

var generateSearch bool

var generateCmd = &cobra.Command{
	Use:   "generate <note-id>",
	Short: "Generate an assistant note below a note",
	Long: `Send the note and its ancestors to the configured model and write the
reply into a new note below it. With --search the model may run one web
search first (needs search_api_key).

Interrupting removes the partial note.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := generate.CommandGenerate
		if generateSearch {
			id = generate.CommandSearch
		}
		return runCommand(cmd, id, args[0])
	},
}

var nextCmd = &cobra.Command{
	Use:   "next <note-id>",
	Short: "Create an empty note continuing a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, generate.CommandNextNote, args[0])
	},
}

func init() {
	generateCmd.Flags().BoolVar(&generateSearch, "search", false, "allow one web search round")
}

// runCommand runs a generator command with the note as the selection.
func runCommand(cmd *cobra.Command, commandID, noteID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(cmd, func(_ context.Context, store *canvas.Store) error {
		n, err := store.GetNote(ctx, noteID)
		if err != nil {
			return err
		}

		gen := generate.New(generate.Deps{
			Host:   store,
			Logger: logger.Named("generate"),
			Notifier: generate.NotifierFunc(func(msg string) {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}),
		})
		for _, c := range gen.Commands(func() config.Settings { return settings }) {
			if c.ID != commandID {
				continue
			}
			msg, err := c.Run(ctx, []notegraph.Node{n})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		}
		return fmt.Errorf("unknown command %q", commandID)
	})
}

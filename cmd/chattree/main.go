// chattree: LLM conversations on a canvas of notes.
//
// Each note continues the note it points to. Generating from a note walks
// its ancestors, sends them to a language model and streams the reply into
// a new note below it.
//
// Usage:
//
//	chattree serve                 # MCP server on stdio
//	chattree note add "question"   # add a note to the canvas
//	chattree generate <note-id>    # stream a reply below a note
//	chattree update                # update to the latest release
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/logging"
)

var (
	// Global flags
	configPath string
	dataDir    string
	debug      bool

	settings config.Settings
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chattree",
	Short: "LLM conversations on a canvas of notes",
	Long: `chattree keeps a canvas of notes in SQLite. A note continues the note it
points to; generating from a note sends it and its ancestors to a language
model and streams the reply into a new note below it.

Run "chattree serve" from an MCP client to drive the canvas from an editor
or an AI assistant.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(&s)
		settings = s

		logger, err = logging.New(s.Debug)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// applyFlags lets command-line flags win over the file and environment.
func applyFlags(s *config.Settings) {
	if dataDir != "" {
		s.DataDir = dataDir
	}
	if debug {
		s.Debug = true
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding canvas.db (default from config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	rootCmd.AddCommand(serveCmd, noteCmd, nextCmd, generateCmd, configCmd, versionCmd, updateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

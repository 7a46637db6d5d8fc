package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/server"
	"github.com/HendryAvila/chattree/internal/updater"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update chattree to the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "chattree %s, checking for updates...\n", server.Version)

		res, err := updater.New().Update(cmd.Context(), server.Version, "")
		if errors.Is(err, updater.ErrUpToDate) {
			fmt.Fprintln(w, "Already up to date.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Updated %s -> %s\n  %s\n", res.CurrentVersion, res.LatestVersion, res.ReleaseURL)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chattree %s\n", server.Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings (keys hidden)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := settings
		if s.APIKey != "" {
			s.APIKey = "***"
		}
		if s.SearchAPIKey != "" {
			s.SearchAPIKey = "***"
		}
		out, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.Save(configPath, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
}

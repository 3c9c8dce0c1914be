package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadia-health/epiforecast/internal/data"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List built-in disease profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, key := range data.ListProfiles() {
			fmt.Println(key)
		}
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <disease>",
	Short: "Print the effective profile for a disease",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := data.LoadProfile(cfg.Simulation.ProfilesDir, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

func init() {
	profilesCmd.AddCommand(profilesShowCmd)
	rootCmd.AddCommand(profilesCmd)
}

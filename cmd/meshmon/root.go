package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "meshmon",
	Short: "Packet radio mesh network monitor",
	Long: `meshmon attaches to a mesh radio gateway, tracks every node it
hears, maps the network topology from traceroutes and broadcasts a
daily situation report.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("meshmon", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "meshmon.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

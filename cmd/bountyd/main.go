package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bountyd",
	Short: "StandardBounties escrow daemon",
	Long:  "A bounty marketplace daemon: issuers escrow funds against tasks, fulfillers submit work, and accepted work pays out minus a platform fee.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "~/.standardbounties/config.yaml", "Path to configuration file")
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

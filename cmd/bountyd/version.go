package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/standardbounties/standardbounties/internal/bounty"
)

// Version is set at build time via -ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("StandardBounties Daemon")
			fmt.Println("=======================")
			fmt.Printf("Version:        %s\n", Version)
			fmt.Printf("Commit:         %s\n", Commit)
			fmt.Printf("Build Date:     %s\n", BuildDate)
			fmt.Printf("Implementation: %s\n", bounty.Version)
			fmt.Printf("Go Version:     %s\n", runtime.Version())
			fmt.Printf("OS/Arch:        %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

func versionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "version",
		Short: "Show the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Talos", Version)
			fmt.Println("- go/version:", runtime.Version())
		},
	}

	c.AddCommand(&cobra.Command{
		Use:   "deps",
		Short: "Show build dependencies",
		Run: func(cmd *cobra.Command, args []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok {
				return
			}
			for _, dep := range info.Deps {
				fmt.Printf("%s %s (%s)", dep.Path, dep.Version, dep.Sum)
				if dep.Replace != nil {
					fmt.Printf(" => %s %s (%s)\n", dep.Replace.Path, dep.Replace.Version, dep.Replace.Sum)
				} else {
					fmt.Print("\n")
				}
			}
		},
	})

	return c
}

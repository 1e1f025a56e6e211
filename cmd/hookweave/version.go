package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionString is stamped by the release build.
var versionString = "dev"

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the hookweave version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(versionString)
		},
	}
}

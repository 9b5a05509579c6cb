package main

import (
	"fmt"

	"github.com/spf13/cobra"

	plateprocessor "github.com/menta2k/plate-processor"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "plate-processor %s\n", plateprocessor.Version)
			return nil
		},
	}
}

package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the user's memory as JSON",
		Long:  "Writes all units, clusters, and the profile to stdout as one JSON document.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	sys, err := openSystem()
	if err != nil {
		exitErr("open", err)
	}
	defer sys.Close()

	exp, err := sys.Export(cmd.Context(), userFlag)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(exp)
}

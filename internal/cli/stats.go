package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics for the user",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	sys, err := openSystem()
	if err != nil {
		exitErr("open", err)
	}
	defer sys.Close()

	st, err := sys.Stats(cmd.Context(), userFlag)
	if err != nil {
		exitErr("stats", err)
	}

	if formatFlag == "json" {
		printJSON(st)
		return
	}
	fmt.Printf("units: %d\nclusters: %d\nforesights: %d\nconflicts: %d\ndb size: %d bytes\n",
		st.Units, st.Clusters, st.Foresights, st.Conflicts, st.DBBytes)
}

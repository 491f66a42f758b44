package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scenes [cluster-id]",
		Short: "List thematic clusters, or show one cluster's memories",
		Args:  cobra.MaximumNArgs(1),
		Run:   runScenes,
	}

	RootCmd.AddCommand(cmd)
}

func runScenes(cmd *cobra.Command, args []string) {
	sys, err := openSystem()
	if err != nil {
		exitErr("open", err)
	}
	defer sys.Close()

	if len(args) == 1 {
		c, units, err := sys.ClusterContents(cmd.Context(), args[0])
		if err != nil {
			exitErr("scenes", err)
		}
		if formatFlag == "json" {
			printJSON(map[string]any{"cluster": c, "units": units})
			return
		}
		fmt.Printf("%s  %s\n%s\n\n", c.ID, c.Theme, c.Summary)
		for _, u := range units {
			fmt.Printf("- [%s] %s\n", u.CreatedAt.Format("2006-01-02"), u.Narrative)
		}
		return
	}

	clusters, err := sys.Clusters(cmd.Context(), userFlag)
	if err != nil {
		exitErr("scenes", err)
	}
	if formatFlag == "json" {
		printJSON(clusters)
		return
	}
	if len(clusters) == 0 {
		fmt.Println("no clusters yet")
		return
	}
	for _, c := range clusters {
		fmt.Printf("%s  %-24s %d memories\n", c.ID, c.Theme, len(c.MemberIDs))
	}
}

// Package cli implements the evermemo CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evermemo/evermemo/internal/config"
	"github.com/evermemo/evermemo/internal/memory"
)

var (
	configPath string
	dbPath     string
	userFlag   string
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "evermemo",
	Short: "Long-term memory engine for conversational agents",
	Long: "Consolidates conversations into thematic long-term memory and answers\n" +
		"questions with reconstructive retrieval. SQLite-backed, single binary.",
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	pf.StringVarP(&dbPath, "db", "d", "", "Database path (default: $EVERMEMO_DB or ~/.evermemo/memory.db)")
	pf.StringVarP(&userFlag, "user", "u", "default", "User the command applies to")
	pf.StringVarP(&formatFlag, "format", "f", "text", "Output format: text or json")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func newLogger() *zap.Logger {
	if verbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	l, _ := cfg.Build()
	return l
}

func openSystem() (*memory.System, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return memory.Open(cfg, newLogger())
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/reach"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "reach",
	Short:         "Vulnerability reachability analysis",
	Long:          "Reach builds a call graph across an application and its dependencies and reports whether known-vulnerable functions are actually reachable.",
	SilenceErrors: true,
	SilenceUsage:  true,
	// No Run — prints help by default.
}

var (
	flagVulns     string
	flagConfig    string
	flagFormat    string
	flagStrict    bool
	flagLanguages string
	flagTimeout   time.Duration
	flagCache     string
	flagWorkers   int
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a project and report vulnerability reachability",
	Long:  "Resolves dependencies, parses application and dependency code, computes the reachable set, and cross-references the given vulnerability records.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&flagVulns, "vulns", "", "path to a JSON file of OSV-format vulnerability records")
	scanCmd.Flags().StringVar(&flagConfig, "config", "", "config file (default: reach.yaml in the project root)")
	scanCmd.Flags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	scanCmd.Flags().BoolVar(&flagStrict, "strict", false, "follow only exact-confidence call edges")
	scanCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. python,java)")
	scanCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-package parse budget (default 30s)")
	scanCmd.Flags().StringVar(&flagCache, "cache", "", "SQLite parse cache path")
	scanCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel parse workers (default: number of CPUs)")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if flagFormat != "json" && flagFormat != "text" {
		return fmt.Errorf("invalid format %q (want json or text)", flagFormat)
	}

	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	configPath := flagConfig
	if configPath == "" {
		configPath = filepath.Join(root, reach.ConfigFileName)
	}
	cfg, err := reach.LoadConfig(configPath)
	if err != nil {
		return err
	}
	opts, err := cfg.Options(filepath.Dir(configPath))
	if err != nil {
		return err
	}

	// Flags win over the config file.
	if flagStrict {
		opts = append(opts, reach.WithStrictConfidence())
	}
	if flagLanguages != "" {
		langs := strings.Split(flagLanguages, ",")
		for i := range langs {
			langs[i] = strings.TrimSpace(langs[i])
		}
		opts = append(opts, reach.WithLanguages(langs...))
	}
	if flagTimeout > 0 {
		opts = append(opts, reach.WithPackageTimeout(flagTimeout))
	}
	if flagCache != "" {
		opts = append(opts, reach.WithCachePath(flagCache))
	}
	if flagWorkers > 0 {
		opts = append(opts, reach.WithWorkers(flagWorkers))
	}

	var records []reach.Record
	if flagVulns != "" {
		records, err = reach.LoadRecords(flagVulns)
		if err != nil {
			return err
		}
	}

	s, err := reach.NewScanner(root, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Scan(cmd.Context(), records)
	if err != nil {
		return err
	}

	if flagFormat == "text" {
		return report.WriteText(os.Stdout)
	}
	return report.WriteJSON(os.Stdout)
}

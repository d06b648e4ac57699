package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "payplan",
	Short: "payplan - bonus compensation calculation engine",
	Long: `payplan validates and executes bonus-compensation calculation plans.

A plan is a YAML file of named calculation steps; batch data is a JSON
array of employee rows. "validate" checks the plan's dependency graph,
"run" executes it over a batch.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
}

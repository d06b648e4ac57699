package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"payplan/plan"
	"payplan/planfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Validate a plan's dependency graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := planfile.Load(args[0])
		if err != nil {
			return err
		}

		result := plan.Validate(p)

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(out))

		if !result.Valid {
			return fmt.Errorf("plan %q is invalid", p.Name)
		}
		return nil
	},
}

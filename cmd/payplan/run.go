package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"payplan/batch"
	"payplan/plan"
	"payplan/planfile"
)

var (
	runMode  string
	runScale int32
	runAudit string
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml> <rows.json>",
	Short: "Execute a plan over a batch of employee rows",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := planfile.Load(args[0])
		if err != nil {
			return err
		}

		rowData, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading rows file: %w", err)
		}
		rows, err := planfile.Rows(rowData)
		if err != nil {
			return err
		}

		validation := plan.Validate(p)
		if !validation.Valid {
			return fmt.Errorf("plan %q failed validation: %s", p.Name, validation)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		var sink batch.ResultSink
		if runAudit != "" {
			f, err := os.Create(runAudit)
			if err != nil {
				return fmt.Errorf("creating audit file: %w", err)
			}
			defer f.Close()
			sink = &batch.JSONLSink{W: f}
		}

		executor, err := batch.NewExecutor(logger, batch.Options{
			PrecisionMode: batch.PrecisionMode(runMode),
			Scale:         runScale,
		}, sink)
		if err != nil {
			return err
		}

		table := batch.FromRows(rows)
		result, err := executor.Execute(p, validation.SuggestedOrdering, table)
		if err != nil {
			return err
		}

		logger.Info("batch complete",
			"run_id", result.RunID,
			"rows", table.Rows(),
			"steps", len(result.Order),
			"row_errors", len(result.RowErrors))

		return writeRows(os.Stdout, table)
	},
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "balanced", "precision mode: fast, balanced, or exact")
	runCmd.Flags().Int32Var(&runScale, "scale", 2, "decimal quantization scale for balanced mode")
	runCmd.Flags().StringVar(&runAudit, "audit", "", "write step result records to this JSONL file")
}

func writeRows(w *os.File, t *batch.Table) error {
	enc := json.NewEncoder(w)
	for _, row := range t.RowMaps() {
		for k, v := range row {
			if d, ok := v.(decimal.Decimal); ok {
				row[k] = d.String()
			}
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encoding output row: %w", err)
		}
	}
	return nil
}

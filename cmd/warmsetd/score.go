package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"warmsetd/internal/quality"
	"warmsetd/pkg/types"
)

func newScoreCmd() *cobra.Command {
	var (
		modelID string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:     "score <blob>...",
		Short:   "Run the NOVAQ quality gate over blob files",
		Example: "  warmsetd score --model-id llama-7b-novaq model.novaq\n  warmsetd score --json a.novaq b.novaq",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				results []types.ValidationResult
				errs    []error
			)
			for _, path := range args {
				blob, err := os.ReadFile(path)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				id := modelID
				if id == "" {
					id = path
				}
				res, err := quality.Validate(id, blob)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				results = append(results, res)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, r := range results {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
			} else if len(results) > 0 {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MODEL\tRATIO\tACCURACY\tSCORE\tPASSED\tISSUES")
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%.1f\t%.3f\t%.3f\t%t\t%s\n",
						r.ModelID, r.CompressionRatio, r.BitAccuracy, r.QualityScore, r.ValidationPassed, strings.Join(r.Issues, "; "))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&modelID, "model-id", "", "Model id reported in results (default: the file path)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON result per line")
	return cmd
}

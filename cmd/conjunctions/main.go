// Command conjunctions generates synthetic catalogs and runs the conjunction estimator
// over a catalog file once, without the service around it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/conjunction"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "conjunctions",
		Short:        "Estimate close approaches between tracked objects",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newEstimateCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	var (
		count  int
		seed   uint64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic catalog to stdout",
		Long: `Generate a reproducible mock catalog of satellites and debris spread over the
globe. The same --count and --seed always produce the same catalog.`,
		Example: `  conjunctions generate --count 50 --seed 7 > catalog.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("--count must not be negative")
			}
			objects := catalog.Generate(count, seed)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"objects": objects})
			}
			return catalog.Encode(cmd.OutOrStdout(), objects)
		},
	}
	cmd.Flags().IntVar(&count, "count", 40, "number of objects")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write JSON instead of YAML")
	return cmd
}

func newEstimateCmd() *cobra.Command {
	var (
		file        string
		seed        uint64
		maxPairs    int
		maxVelocity float64
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Run the estimator once over a catalog file",
		Long: `Load a YAML or JSON catalog (a bare list of objects or an "objects:" mapping),
validate it, assign seeded random velocities and print the ranked conjunctions.`,
		Example: `  conjunctions estimate --file catalog.yaml --seed 42
  conjunctions generate | conjunctions estimate --file - --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxPairs < 1 {
				return fmt.Errorf("--max-pairs must be at least 1")
			}
			if !(maxVelocity > 0) {
				return fmt.Errorf("--max-velocity must be positive")
			}

			objects, err := readCatalog(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if err := catalog.Validate(objects); err != nil {
				return fmt.Errorf("invalid catalog: %w", err)
			}

			cfg := conjunction.DefaultConfig()
			cfg.MaxPairs = maxPairs
			result := conjunction.New(cfg).Estimate(objects, conjunction.NewRandomVelocity(maxVelocity, seed))

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return writeTable(cmd.OutOrStdout(), len(objects), result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `catalog file, or "-" for stdin`)
	cmd.Flags().Uint64Var(&seed, "seed", 1, "velocity seed")
	cmd.Flags().IntVar(&maxPairs, "max-pairs", conjunction.DefaultMaxPairs, "maximum pairs to report")
	cmd.Flags().Float64Var(&maxVelocity, "max-velocity", 0.05, "per-axis velocity bound in scene units")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write JSON instead of a table")
	cmd.MarkFlagRequired("file")
	return cmd
}

func readCatalog(stdin io.Reader, path string) ([]conjunction.SpaceObject, error) {
	if path == "-" {
		objects, err := catalog.Decode(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return objects, nil
	}
	contents, err := catalog.FileSource{Path: path}.Load(context.Background())
	if err != nil {
		return nil, err
	}
	return contents.Objects, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, objects int, result conjunction.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tA\tB\tRISK\tMISS\tRATIO\tT*\tCOLLISION")
	for i, p := range result.Pairs {
		collision := ""
		if p.Collision() {
			collision = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\t%.2f\t%.2f\t%s\n",
			i+1, p.AName, p.BName, p.Risk, p.MissDistance, p.Ratio(), p.TimeToClosestApproach, collision)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	ids := make([]string, 0, len(result.Annotations))
	for id := range result.Annotations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "\n%d objects, %d pairs, %d objects at risk\n", objects, len(result.Pairs), len(ids))
	for _, id := range ids {
		a := result.Annotations[id]
		fmt.Fprintf(w, "  %s: %s (%d conflicts)\n", id, a.Risk, len(a.ConflictIDs))
	}
	return nil
}

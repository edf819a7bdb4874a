package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/optiview/optiview/internal/export"
	"github.com/optiview/optiview/internal/logger"
	"github.com/optiview/optiview/internal/pareto"
	"github.com/optiview/optiview/internal/study"
	"github.com/optiview/optiview/pkg/types"
)

var (
	frontSchema     string
	frontTable      string
	frontObjectives string
	frontFormat     string
	frontOutput     string
)

var frontCmd = &cobra.Command{
	Use:   "front",
	Short: "Compute the Pareto front of a study",
	Long: `Loads a schema and iteration table from local files, computes the
Pareto front over the given objectives, and prints the non-dominated rows.
With --output (or --format) the full table is exported instead, with a
front-membership column, through the configured object storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log := logger.NewNop()
		if cfg.Logging.Verbose {
			log = logger.New(true)
		}

		loader := study.NewLoader(nil, log, cfg.DelimiterRune(), cfg.Limits.MaxRows)
		st, err := loader.LoadFromFiles(cmd.Context(), frontSchema, frontTable)
		if err != nil {
			return err
		}

		objectives, err := parseObjectives(frontObjectives, st)
		if err != nil {
			return err
		}

		rows, err := pareto.Front(st.Data, objectives)
		if err != nil {
			return err
		}

		if frontOutput == "" && !cmd.Flags().Changed("format") {
			printFront(st, objectives, rows)
			return nil
		}

		format, err := export.ParseFormat(frontFormat)
		if err != nil {
			return err
		}

		store, err := openStorage(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		result, err := export.NewExporter(store, log).Export(cmd.Context(), st, export.Request{
			SessionID:   "cli",
			Format:      format,
			Destination: frontOutput,
			FrontRows:   rows,
		})
		if err != nil {
			return err
		}

		fmt.Printf("exported %d rows (%d on the front) to %s\n",
			result.Rows, len(rows), result.ObjectPath)
		return nil
	},
}

func init() {
	frontCmd.Flags().StringVar(&frontSchema, "schema", "", "path to the schema YAML file")
	frontCmd.Flags().StringVar(&frontTable, "table", "", "path to the iteration table")
	frontCmd.Flags().StringVar(&frontObjectives, "objectives", "",
		"objective columns as name:sense pairs, comma separated (default: all declared objectives, minimized)")
	frontCmd.Flags().StringVar(&frontFormat, "format", "csv", "export format: csv or json")
	frontCmd.Flags().StringVar(&frontOutput, "output", "", "export destination object path")
	frontCmd.MarkFlagRequired("schema")
	frontCmd.MarkFlagRequired("table")
}

// parseObjectives turns "cost:min,mass:max" into an objective selection.
// Names without a sense minimize. An empty spec selects every declared
// objective.
func parseObjectives(spec string, st *study.Study) ([]types.Objective, error) {
	if spec == "" {
		return st.DefaultObjectives(), nil
	}

	parts := strings.Split(spec, ",")
	objectives := make([]types.Objective, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		sense := types.SenseMinimize
		if i := strings.IndexByte(name, ':'); i >= 0 {
			parsed, err := types.ParseSense(strings.TrimSpace(name[i+1:]))
			if err != nil {
				return nil, err
			}
			sense = parsed
			name = strings.TrimSpace(name[:i])
		}
		if name == "" {
			return nil, fmt.Errorf("empty objective name in %q", spec)
		}
		objectives = append(objectives, types.Objective{Name: name, Sense: sense})
	}
	return objectives, nil
}

func printFront(st *study.Study, objectives []types.Objective, rows []int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(w, "row")
	for _, o := range objectives {
		fmt.Fprintf(w, "\t%s (%s)", o.Name, o.Sense)
	}
	fmt.Fprintln(w)

	for _, idx := range rows {
		fmt.Fprintf(w, "%d", idx)
		for _, o := range objectives {
			col, _ := st.Data.Column(o.Name)
			fmt.Fprintf(w, "\t%s", strconv.FormatFloat(col.Scalars[idx], 'g', -1, 64))
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	fmt.Printf("\n%d of %d rows on the front\n", len(rows), st.Data.RowCount())
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/optiview/optiview/internal/catalog"
	"github.com/optiview/optiview/internal/logger"
	"github.com/optiview/optiview/internal/snapshot"
	"github.com/optiview/optiview/internal/study"
)

var (
	snapSchema string
	snapTable  string
	snapName   string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build and inspect study snapshots",
}

var snapshotBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Freeze a study into a snapshot file and catalog it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}

		log := logger.NewNop()
		if cfg.Logging.Verbose {
			log = logger.New(true)
		}

		loader := study.NewLoader(nil, log, cfg.DelimiterRune(), cfg.Limits.MaxRows)
		st, err := loader.LoadFromFiles(cmd.Context(), snapSchema, snapTable)
		if err != nil {
			return err
		}

		path := filepath.Join(cfg.Snapshots.Dir, fmt.Sprintf("%016x.snapshot", st.Fingerprint))
		info, err := snapshot.NewWriter(log).Write(cmd.Context(), path, st)
		if err != nil {
			return err
		}

		cat, err := catalog.New(cfg.Snapshots.CatalogPath, log)
		if err != nil {
			return err
		}
		defer cat.Close()

		rec, err := cat.Register(cmd.Context(), info, snapName, snapSchema, snapTable)
		if err != nil {
			return err
		}

		fmt.Printf("snapshot %s\n", rec.SnapshotID)
		fmt.Printf("  fingerprint: %s\n", rec.Fingerprint)
		fmt.Printf("  rows:        %d\n", rec.RowCount)
		fmt.Printf("  size:        %d bytes\n", rec.SizeBytes)
		fmt.Printf("  path:        %s\n", rec.Path)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cataloged snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cat, err := catalog.New(cfg.Snapshots.CatalogPath, logger.NewNop())
		if err != nil {
			return err
		}
		defer cat.Close()

		records, err := cat.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no snapshots cataloged")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFINGERPRINT\tROWS\tSIZE\tCREATED")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				rec.SnapshotID, rec.Name, rec.Fingerprint, rec.RowCount,
				rec.SizeBytes, rec.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect <id-or-fingerprint>",
	Short: "Show a snapshot's metadata and columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cat, err := catalog.New(cfg.Snapshots.CatalogPath, logger.NewNop())
		if err != nil {
			return err
		}
		defer cat.Close()

		rec, err := cat.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		st, _, err := snapshot.Read(cmd.Context(), rec.Path)
		if err != nil {
			return err
		}

		fmt.Printf("snapshot %s\n", rec.SnapshotID)
		if rec.Name != "" {
			fmt.Printf("  name:        %s\n", rec.Name)
		}
		fmt.Printf("  fingerprint: %s\n", rec.Fingerprint)
		fmt.Printf("  schema:      %s\n", rec.SchemaSource)
		fmt.Printf("  table:       %s\n", rec.TableSource)
		fmt.Printf("  rows:        %d\n", rec.RowCount)
		fmt.Printf("  size:        %d bytes\n", rec.SizeBytes)
		fmt.Printf("  created:     %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COLUMN\tKIND\tWIDTH\tROLE")
		for _, col := range st.Data.Series() {
			role := "-"
			if r, ok := st.RoleOf(col.Name); ok {
				role = string(r)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", col.Name, col.Kind, col.Width, role)
		}
		return w.Flush()
	},
}

func init() {
	snapshotBuildCmd.Flags().StringVar(&snapSchema, "schema", "", "path to the schema YAML file")
	snapshotBuildCmd.Flags().StringVar(&snapTable, "table", "", "path to the iteration table")
	snapshotBuildCmd.Flags().StringVar(&snapName, "name", "", "human-readable snapshot name")
	snapshotBuildCmd.MarkFlagRequired("schema")
	snapshotBuildCmd.MarkFlagRequired("table")

	snapshotCmd.AddCommand(snapshotBuildCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
}

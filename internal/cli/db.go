package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/mention"
)

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Browse connections and move data in and out of databases",
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List connections, or the databases, schemas and tables below one",
		Long: `List what @mentions can point at.

  dagent db ls                                  connections
  dagent db ls -c 3                             databases of connection 3
  dagent db ls -c 3 -d shop                     schemas of shop
  dagent db ls -c 3 -d shop -s public           tables of shop.public`,
		Args: cobra.NoArgs,
		RunE: runWithApp(runDBList),
	}
	lsCmd.Flags().StringP("database", "d", "", "Database name")
	lsCmd.Flags().StringP("schema", "s", "", "Schema name")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a database as a SQL script",
		Args:  cobra.NoArgs,
		RunE:  runWithApp(runDBExport),
	}
	exportCmd.Flags().StringP("database", "d", "", "Database name (required)")
	exportCmd.Flags().StringP("output", "o", "", "Write the script to a file instead of stdout")
	_ = exportCmd.MarkFlagRequired("database")

	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables an export would include",
		Args:  cobra.NoArgs,
		RunE:  runWithApp(runDBTables),
	}
	tablesCmd.Flags().StringP("database", "d", "", "Database name (required)")
	_ = tablesCmd.MarkFlagRequired("database")

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Run a SQL script against a connection",
		Long: `Run a SQL script against a connection. The script comes from a file
argument, from --sql, or from stdin when the file is "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWithApp(runDBImport),
	}
	importCmd.Flags().String("sql", "", "Inline SQL script")

	dbCmd.PersistentFlags().Int64P("connection", "c", 0, "Connection id")
	dbCmd.AddCommand(lsCmd, exportCmd, tablesCmd, importCmd)
	return dbCmd
}

func init() {
	rootCmd.AddCommand(newDBCmd())
}

func connectionFlag(cmd *cobra.Command) (int64, error) {
	id, _ := cmd.Flags().GetInt64("connection")
	if id <= 0 {
		return 0, errors.New("--connection is required")
	}
	return id, nil
}

func runDBList(cmd *cobra.Command, _ []string, a *app) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	connID, _ := cmd.Flags().GetInt64("connection")
	database, _ := cmd.Flags().GetString("database")
	schema, _ := cmd.Flags().GetString("schema")

	level := mention.Connection
	filter := mention.Filter{ConnectionID: connID, DatabaseName: database, SchemaName: schema}
	switch {
	case connID > 0 && database != "" && schema != "":
		level = mention.Table
	case connID > 0 && database != "":
		level = mention.Schema
	case connID > 0:
		level = mention.Database
	case database != "" || schema != "":
		return errors.New("--connection is required with --database or --schema")
	}

	items, err := api.NewMentionProvider(a.client).Candidates(cmd.Context(), level, filter)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintf(out, "No %ss found.\n", level)
		return nil
	}
	for _, it := range items {
		if level == mention.Connection {
			fmt.Fprintf(out, "%6s  %s\n", it.ID, it.Label)
			continue
		}
		fmt.Fprintln(out, it.Label)
	}
	return nil
}

func runDBExport(cmd *cobra.Command, _ []string, a *app) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	connID, err := connectionFlag(cmd)
	if err != nil {
		return err
	}
	database, _ := cmd.Flags().GetString("database")
	output, _ := cmd.Flags().GetString("output")

	script, err := a.client.ExportDatabase(cmd.Context(), connID, database)
	if err != nil {
		return err
	}

	if output == "" || output == "-" {
		_, err := io.WriteString(cmd.OutOrStdout(), script)
		return err
	}
	if err := os.WriteFile(output, []byte(script), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %s to %s\n", database, output)
	return nil
}

func runDBTables(cmd *cobra.Command, _ []string, a *app) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	connID, err := connectionFlag(cmd)
	if err != nil {
		return err
	}
	database, _ := cmd.Flags().GetString("database")

	tables, err := a.client.ExportTables(cmd.Context(), connID, database)
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	return nil
}

func runDBImport(cmd *cobra.Command, args []string, a *app) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	connID, err := connectionFlag(cmd)
	if err != nil {
		return err
	}
	inline, _ := cmd.Flags().GetString("sql")
	out := cmd.OutOrStdout()

	switch {
	case inline != "" && len(args) > 0:
		return errors.New("pass either a file or --sql, not both")

	case inline != "":
		if err := a.client.ImportSQL(cmd.Context(), connID, inline); err != nil {
			return err
		}

	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		if err := a.client.ImportSQL(cmd.Context(), connID, string(data)); err != nil {
			return err
		}

	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if err := a.client.ImportFile(cmd.Context(), connID, filepath.Base(args[0]), f); err != nil {
			return err
		}

	default:
		return errors.New("nothing to import: pass a file, - for stdin, or --sql")
	}

	fmt.Fprintln(out, "✓ Import finished")
	return nil
}

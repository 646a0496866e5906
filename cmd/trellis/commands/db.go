package commands

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/db"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the trellis SQLite database",
	Long: `Manage the SQLite database used by the sqlite storage and analytics backends.

Examples:
  trellis db status     # Show applied and pending migrations and row counts
  trellis db migrate    # Apply pending migrations without starting the server`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migrations and table statistics",
	RunE:  runDbStatus,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbStatusCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	dbPath := databasePath(cfg)
	database, err := db.Open(dbPath, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	defer database.Close()

	migrations, err := db.Status(database)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s\n\n", dbPath)
	if err := writeMigrations(out, migrations); err != nil {
		return err
	}

	for _, table := range []string{"graph_blobs", "progress_events"} {
		count, err := countRows(database, table)
		if err != nil {
			return err
		}
		if count < 0 {
			continue
		}
		fmt.Fprintf(out, "%-16s %d rows\n", table+":", count)
	}
	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	dbPath := databasePath(cfg)
	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	defer database.Close()

	ran, err := db.Apply(database, logger.Logger)
	if err != nil {
		return err
	}
	if len(ran) == 0 {
		pterm.Success.Println("Database is up to date")
		return nil
	}
	for _, m := range ran {
		pterm.Success.Printf("Applied %s_%s\n", m.Version, m.Name)
	}
	return nil
}

// writeMigrations renders one row per embedded migration.
func writeMigrations(w io.Writer, migrations []db.Migration) error {
	data := pterm.TableData{{"Version", "Migration", "Applied"}}
	for _, m := range migrations {
		applied := m.AppliedAt
		if m.Pending() {
			applied = "pending"
		}
		data = append(data, []string{m.Version, m.Name, applied})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render migrations")
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// countRows returns -1 when table has not been created yet.
func countRows(database *sql.DB, table string) (int, error) {
	var exists int
	if err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&exists); err != nil {
		return 0, errors.Wrapf(err, "check %s", table)
	}
	if exists == 0 {
		return -1, nil
	}
	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "count %s", table)
	}
	return count, nil
}

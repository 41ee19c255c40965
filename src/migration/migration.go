package migration

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/migration/migrations"
	"github.com/thetakeaway/takeaway/src/migration/types"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/website"
)

var listMigrations bool

func init() {
	migrateCommand := &cobra.Command{
		Use:   "migrate [target migration id]",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			conn, err := db.NewConn()
			if err != nil {
				return err
			}
			defer conn.Close(ctx)

			if listMigrations {
				ListMigrations(ctx, conn)
				return nil
			}

			targetVersion := time.Time{}
			if len(args) > 0 {
				targetVersion, err = time.Parse(time.RFC3339, args[0])
				if err != nil {
					return fmt.Errorf("bad version string: %w", err)
				}
			}
			return Migrate(ctx, conn, types.MigrationVersion(targetVersion))
		},
	}
	migrateCommand.Flags().BoolVar(&listMigrations, "list", false, "List available migrations")

	makeMigrationCommand := &cobra.Command{
		Use:   "makemigration <name> <description>...",
		Short: "Create a new database migration file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			description := strings.Join(args[1:], " ")

			path, err := MakeMigration(filepath.Join("src", "migration", "migrations"), name, description, time.Now())
			if err != nil {
				return err
			}
			fmt.Println("Successfully created migration file:")
			fmt.Println(path)
			return nil
		},
	}

	website.WebsiteCommand.AddCommand(migrateCommand)
	website.WebsiteCommand.AddCommand(makeMigrationCommand)
}

func getSortedMigrationVersions() []types.MigrationVersion {
	var allVersions []types.MigrationVersion
	for migrationTime := range migrations.All {
		allVersions = append(allVersions, migrationTime)
	}
	sort.Slice(allVersions, func(i, j int) bool {
		return allVersions[i].Before(allVersions[j])
	})

	return allVersions
}

func getCurrentVersion(ctx context.Context, conn db.ConnOrTx) (types.MigrationVersion, error) {
	var currentVersion time.Time
	row := conn.QueryRow(ctx, "SELECT version FROM takeaway_migration")
	err := row.Scan(&currentVersion)
	if err != nil {
		return types.MigrationVersion{}, err
	}
	currentVersion = currentVersion.UTC()

	return types.MigrationVersion(currentVersion), nil
}

func ListMigrations(ctx context.Context, conn db.ConnOrTx) {
	// A missing migration table just means nothing has run yet.
	currentVersion, _ := getCurrentVersion(ctx, conn)
	for _, version := range getSortedMigrationVersions() {
		migration := migrations.All[version]
		indicator := "  "
		if version.Equal(currentVersion) {
			indicator = "✔ "
		}
		fmt.Printf("%s%v (%s: %s)\n", indicator, version, migration.Name(), migration.Description())
	}
}

var ErrUnknownMigration = errors.New("no migration with that version")

/*
Moves the schema to targetVersion, rolling forward or back one migration per
transaction. A zero targetVersion means the latest migration.
*/
func Migrate(ctx context.Context, conn *pgx.Conn, targetVersion types.MigrationVersion) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS takeaway_migration (
			version		TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return oops.New(err, "failed to create migration table")
	}

	numRows, err := db.QueryOneScalar[int](ctx, conn, "SELECT COUNT(*) FROM takeaway_migration")
	if err != nil {
		return oops.New(err, "failed to count migration rows")
	}
	if numRows < 1 {
		_, err := conn.Exec(ctx, "INSERT INTO takeaway_migration (version) VALUES ($1)", time.Time{})
		if err != nil {
			return oops.New(err, "failed to insert initial migration row")
		}
	}

	currentVersion, err := getCurrentVersion(ctx, conn)
	if err != nil {
		return oops.New(err, "failed to get current version")
	}
	if currentVersion.IsZero() {
		fmt.Println("This is the first time you have run database migrations.")
	} else {
		fmt.Printf("Current version: %s\n", currentVersion.String())
	}

	allVersions := getSortedMigrationVersions()
	steps, err := plan(allVersions, currentVersion, targetVersion)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Println("Already migrated; nothing to do.")
		return nil
	}

	for _, step := range steps {
		migration := migrations.All[step.version]
		if step.up {
			fmt.Printf("Applying migration %v (%v)\n", step.version, migration.Name())
		} else {
			fmt.Printf("Rolling back migration %v\n", step.version)
		}

		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			var err error
			if step.up {
				err = migration.Up(ctx, tx)
			} else {
				err = migration.Down(ctx, tx)
			}
			if err != nil {
				return oops.New(err, "migration %v failed", step.version)
			}

			_, err = tx.Exec(ctx, "UPDATE takeaway_migration SET version = $1", time.Time(step.resultVersion))
			if err != nil {
				return oops.New(err, "failed to update version in migrations table")
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

type migrationStep struct {
	version       types.MigrationVersion
	up            bool
	resultVersion types.MigrationVersion
}

func plan(allVersions []types.MigrationVersion, current, target types.MigrationVersion) ([]migrationStep, error) {
	if len(allVersions) == 0 {
		return nil, nil
	}
	if target.IsZero() {
		target = allVersions[len(allVersions)-1]
	}

	currentIndex := -1
	targetIndex := -1
	for i, version := range allVersions {
		if current.Equal(version) {
			currentIndex = i
		}
		if target.Equal(version) {
			targetIndex = i
		}
	}

	if targetIndex < 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMigration, target)
	}

	var steps []migrationStep
	if currentIndex < targetIndex {
		for i := currentIndex + 1; i <= targetIndex; i++ {
			steps = append(steps, migrationStep{
				version:       allVersions[i],
				up:            true,
				resultVersion: allVersions[i],
			})
		}
	} else {
		for i := currentIndex; i > targetIndex; i-- {
			previousVersion := types.MigrationVersion{}
			if i > 0 {
				previousVersion = allVersions[i-1]
			}
			steps = append(steps, migrationStep{
				version:       allVersions[i],
				up:            false,
				resultVersion: previousVersion,
			})
		}
	}
	return steps, nil
}

//go:embed migrationTemplate.txt
var migrationTemplate string

func renderMigration(name, description string, now time.Time) string {
	result := migrationTemplate
	result = strings.ReplaceAll(result, "%NAME%", name)
	result = strings.ReplaceAll(result, "%DESCRIPTION%", fmt.Sprintf("%#v", description))

	nowConstructor := fmt.Sprintf("time.Date(%d, %d, %d, %d, %d, %d, 0, time.UTC)", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
	result = strings.ReplaceAll(result, "%DATE%", nowConstructor)
	return result
}

// Writes a new migration file into dir and returns its path.
func MakeMigration(dir, name, description string, now time.Time) (string, error) {
	now = now.UTC()
	safeVersion := strings.ReplaceAll(types.MigrationVersion(now).String(), ":", "")
	path := filepath.Join(dir, fmt.Sprintf("%v_%v.go", safeVersion, name))

	err := os.WriteFile(path, []byte(renderMigration(name, description, now)), 0644)
	if err != nil {
		return "", oops.New(err, "failed to write migration file")
	}
	return path, nil
}

package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	invitationdomain "github.com/smallbiznis/orgsync/internal/invitation/domain"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	organizationdomain "github.com/smallbiznis/orgsync/internal/organization/domain"
	"github.com/smallbiznis/orgsync/internal/outbox"
	userdomain "github.com/smallbiznis/orgsync/internal/user/domain"
	"github.com/smallbiznis/orgsync/pkg/db"
	"gorm.io/gorm"
)

// Models lists every table owned by orgsync, in creation order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&organizationdomain.Organization{},
		&invitationdomain.Invitation{},
		&membershipsync.UserOrganization{},
		&membershipsync.OrganizationMember{},
		&outbox.Record{},
	}
}

// Migrate brings the schema up to date. Postgres runs the versioned SQL files;
// mysql and sqlite, used for local runs and tests, go through AutoMigrate;
// mysql gets its own invitations definition in place of the partial index.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if db.IsPostgres(conn) {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	if err := conn.AutoMigrate(modelsFor(conn)...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded SQL files to a postgres database.
func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.
	return nil
}

package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	chargebackdomain "github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	"github.com/smallbiznis/creatorpay/internal/events"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
	dbpkg "github.com/smallbiznis/creatorpay/pkg/db"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerJournal{},
		&ledgerdomain.LedgerEntry{},
		&feescheduledomain.FeeSchedule{},
		&feescheduledomain.CreatorTier{},
		&transactiondomain.Transaction{},
		&payoutdomain.Payout{},
		&payoutdomain.PayoutItem{},
		&chargebackdomain.Chargeback{},
		&events.OutboxEvent{},
	}
}

// Migrate brings the schema up to date. Postgres runs the versioned SQL
// migrations; mysql and sqlite are migrated from the models.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	if dbpkg.IsPostgres(db) {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(db)
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
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

	driver, err := postgres.WithInstance(db, &postgres.Config{})
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
	// migrator.Close would close the shared *sql.DB.

	return nil
}

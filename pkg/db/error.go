package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsSerializationFailure reports conflicts a serializable transaction may
// surface under concurrent writers. Retrying the whole unit is safe.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "could not serialize access") {
		return true
	}
	// MySQL deadlock (1213), sqlite busy writer.
	if strings.Contains(msg, "Error 1213") || strings.Contains(msg, "database is locked") {
		return true
	}
	return false
}

// IsRetryableConflict covers every error a claim-style transaction retries on.
func IsRetryableConflict(err error) bool {
	return IsDuplicateKeyErr(err) || IsSerializationFailure(err)
}

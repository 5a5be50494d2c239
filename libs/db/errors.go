package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeForeignKey         = "23503"
)

func IsUniqueViolation(err error) bool { return hasCode(err, codeUniqueViolation) }

// IsExclusionViolation reports an exclusion constraint hit, e.g. overlapping
// time ranges.
func IsExclusionViolation(err error) bool { return hasCode(err, codeExclusionViolation) }

func IsForeignKeyViolation(err error) bool { return hasCode(err, codeForeignKey) }

func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

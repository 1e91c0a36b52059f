package commands

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/conduit-lang/pgmeta/internal/orm/migrate"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// categorizeDatabaseError returns a user-facing description of err.
// In verbose mode the full error is returned with credentials removed.
func categorizeDatabaseError(err error, verbose bool) string {
	if verbose {
		return redactCredentials(err).Error()
	}

	if schema.IsMetadataError(err) || migrate.IsSequenceGap(err) {
		return err.Error()
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return redactCredentials(err).Error()
	}

	var category string
	switch {
	case pgErr.Code == "42601":
		category = "SQL syntax error"
	case strings.HasPrefix(pgErr.Code, "23"):
		category = "constraint violation"
		if pgErr.ConstraintName != "" {
			category += " on " + pgErr.ConstraintName
		}
	case pgErr.Code == "42P01", pgErr.Code == "42703", pgErr.Code == "42704":
		category = "referenced object does not exist"
	case pgErr.Code == "42P07", pgErr.Code == "42701", pgErr.Code == "42710":
		category = "object already exists"
	case pgErr.Code == "42501":
		return "permission denied - check database user privileges"
	case strings.HasPrefix(pgErr.Code, "08"):
		category = "connection failure"
	default:
		category = fmt.Sprintf("database error (SQLSTATE %s)", pgErr.Code)
	}
	return category + " - use --verbose for details"
}

var credentialsPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"']+`)

// redactCredentials masks passwords of connection URLs embedded in err
func redactCredentials(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	redacted := credentialsPattern.ReplaceAllStringFunc(msg, func(raw string) string {
		u, parseErr := url.Parse(raw)
		if parseErr != nil || u.User == nil {
			return raw
		}
		if _, hasPassword := u.User.Password(); !hasPassword {
			return raw
		}
		u.User = url.UserPassword(u.User.Username(), "****")
		return strings.Replace(u.String(), "%2A%2A%2A%2A", "****", 1)
	})

	if redacted == msg {
		return err
	}
	return errors.New(redacted)
}

// Package users imports console user accounts from a spreadsheet.
package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

// Columns must all be present. Labels are case sensitive; extra columns are
// ignored.
var Columns = []string{"username", "password", "first_name", "last_name", "email", "role"}

var Roles = []string{
	"MASTER_ADMINISTRATOR",
	"ADMINISTRATOR",
	"IT_ADMIN",
	"SOC_ADMIN",
	"ACCOUNT_ADMINISTRATOR",
	"READ_ONLY",
}

var (
	ErrMissingColumns = errors.New("user sheet is missing columns")
	ErrInvalidRole    = errors.New("invalid role")
	ErrEmptyUsername  = errors.New("username is empty")
)

type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// FromRows converts imported rows to users. All rows are validated and every
// problem is reported together.
func FromRows(rows []sheet.Row) ([]console.User, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if missing := sheet.Missing(rows, Columns...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	out := make([]console.User, 0, len(rows))
	var errs []error
	for i, row := range rows {
		u := console.User{
			Username:  strings.TrimSpace(row["username"]),
			Password:  row["password"],
			FirstName: strings.TrimSpace(row["first_name"]),
			LastName:  strings.TrimSpace(row["last_name"]),
			Email:     strings.TrimSpace(row["email"]),
			Role:      strings.TrimSpace(row["role"]),
		}
		switch {
		case u.Username == "":
			errs = append(errs, &RowError{Line: i + 2, Err: ErrEmptyUsername})
		case !slices.Contains(Roles, u.Role):
			errs = append(errs, &RowError{Line: i + 2, Err: fmt.Errorf("%w %q for %s", ErrInvalidRole, u.Role, u.Username)})
		default:
			out = append(out, u)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

type Creator interface {
	CreateUser(ctx context.Context, u console.User) error
}

// Import creates each user in order and stops at the first rejection. It
// returns how many were created.
func Import(ctx context.Context, c Creator, list []console.User, logger *zerolog.Logger) (int, error) {
	l := log.Logger.With().Str("component", "users").Logger()
	if logger != nil {
		l = *logger
	}
	for i, u := range list {
		if err := c.CreateUser(ctx, u); err != nil {
			return i, fmt.Errorf("create user %s: %w", u.Username, err)
		}
		l.Info().Str("username", u.Username).Str("role", u.Role).Msg("Created user")
	}
	return len(list), nil
}

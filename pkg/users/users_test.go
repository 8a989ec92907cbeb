package users

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console/consoletest"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

func row(username, role string) sheet.Row {
	return sheet.Row{
		"username":   username,
		"password":   "Secret123!",
		"first_name": "Jo",
		"last_name":  "Doe",
		"email":      username + "@example.com",
		"role":       role,
		"notes":      "ignored",
	}
}

func TestFromRows(t *testing.T) {
	list, err := FromRows([]sheet.Row{row("jdoe", "IT_ADMIN"), row("asmith", "READ_ONLY")})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, console.User{
		Username: "jdoe", Password: "Secret123!", FirstName: "Jo", LastName: "Doe",
		Email: "jdoe@example.com", Role: "IT_ADMIN",
	}, list[0])
}

func TestFromRowsReportsEveryBadRow(t *testing.T) {
	_, err := FromRows([]sheet.Row{row("jdoe", "admin"), row("ok", "SOC_ADMIN"), row(" ", "READ_ONLY")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.ErrorIs(t, err, ErrEmptyUsername)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "line 4")
}

func TestFromRowsRequiresColumns(t *testing.T) {
	r := row("jdoe", "IT_ADMIN")
	delete(r, "email")
	delete(r, "role")
	_, err := FromRows([]sheet.Row{r})
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "email, role")
}

func TestImport(t *testing.T) {
	srv := consoletest.New(t)
	logger := zerolog.Nop()
	c, err := console.New(console.Options{URL: srv.URL, APIKey: consoletest.APIKey, Logger: &logger})
	require.NoError(t, err)

	list, err := FromRows([]sheet.Row{row("jdoe", "IT_ADMIN"), row("asmith", "READ_ONLY")})
	require.NoError(t, err)
	n, err := Import(context.Background(), c, list, &logger)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, list, srv.Users())
}

type failingCreator struct{ calls int }

func (f *failingCreator) CreateUser(context.Context, console.User) error {
	f.calls++
	if f.calls == 2 {
		return errors.New("409 conflict")
	}
	return nil
}

func TestImportStopsAtFirstFailure(t *testing.T) {
	logger := zerolog.Nop()
	list := []console.User{{Username: "a"}, {Username: "b"}, {Username: "c"}}
	f := &failingCreator{}
	n, err := Import(context.Background(), f, list, &logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create user b")
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.calls)
}

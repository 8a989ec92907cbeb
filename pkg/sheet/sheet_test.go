package sheet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	err := Write(path,
		Table{Name: "devices", Header: []string{"id", "hostname"}, Rows: [][]any{{1, "alpha"}, {2, " beta "}}},
		Table{Name: "config", Rows: Pairs([][2]string{{"deployment_phase", "2"}})},
	)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"devices", "config"}, f.GetSheetList())
	cell, err := f.GetCellValue("config", "B1")
	require.NoError(t, err)
	assert.Equal(t, "2", cell)
	require.NoError(t, f.Close())

	rows, err := Read(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0]["id"])
	assert.Equal(t, "beta", rows[1]["hostname"])
	assert.Empty(t, Missing(rows, "id", "hostname"))
	assert.Equal(t, []string{"email"}, Missing(rows, "id", "email"))
}

func TestReadSkipsBlankRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.xlsx")
	require.NoError(t, Write(path, Table{
		Name:   "Sheet1",
		Header: []string{"id", "note"},
		Rows:   Strings([][]string{{"10", ""}, {"", ""}, {"11", "x"}}),
	}))

	rows, err := Read(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "11", rows[1]["id"])
}

func TestWriteRequiresTables(t *testing.T) {
	assert.ErrorIs(t, Write(filepath.Join(t.TempDir(), "x.xlsx")), ErrNoSheets)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.xlsx"))
	assert.Error(t, err)
}

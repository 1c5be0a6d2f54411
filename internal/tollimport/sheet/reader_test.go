package sheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadRowsWorkbook(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Datum", "Kenteken", "Land", "Bedrag"},
		{"05-01-2026", "AB-12-CD", "Belgie", "12,50"},
	})

	rows, err := ReadRows(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Datum", "Kenteken", "Land", "Bedrag"}, rows[0])
	assert.Equal(t, "AB-12-CD", rows[1][1])
}

func TestReadRowsCSV(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"comma", "Datum,Kenteken,Land,Bedrag\n05-01-2026,AB-12-CD,Belgie,\"12.50\"\n"},
		{"semicolon", "Datum;Kenteken;Land;Bedrag\n05-01-2026;AB-12-CD;Belgie;12,50\n"},
		{"tab", "Datum\tKenteken\tLand\tBedrag\n05-01-2026\tAB-12-CD\tBelgie\t12,50\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ReadRows(strings.NewReader(tt.data))
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, []string{"Datum", "Kenteken", "Land", "Bedrag"}, rows[0])
			assert.Equal(t, "AB-12-CD", rows[1][1])
		})
	}
}

func TestReadRowsEmpty(t *testing.T) {
	_, err := ReadRows(strings.NewReader(""))
	assert.Error(t, err)
}

package training

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	data := "id,dialogue,summary\n" +
		"1,\"Hannah: Hey\nAmanda: Hi\",Greetings.\n" +
		"2,,Nothing said.\n" +
		"3,Only dialogue\n"

	records, err := LoadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Record{Dialogue: "Hannah: Hey\nAmanda: Hi", Summary: "Greetings."}, records[0])
	assert.Equal(t, Record{Dialogue: "", Summary: "Nothing said."}, records[1])
	assert.Equal(t, Record{Dialogue: "Only dialogue", Summary: ""}, records[2])
}

func TestLoadCSVColumnOrderAndCase(t *testing.T) {
	records, err := LoadCSV(strings.NewReader("\uFEFFSummary,Dialogue\nshort,long text\n"))
	require.NoError(t, err)
	assert.Equal(t, []Record{{Dialogue: "long text", Summary: "short"}}, records)
}

func TestLoadCSVMissingColumns(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("id,summary\n1,x\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = LoadCSV(strings.NewReader("dialogue,text\nx,y\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = LoadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadDatasets(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"train.csv", "validation.csv", "test.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("dialogue,summary\na,b\n"), 0644))
	}

	ds, err := LoadDatasets(filepath.Join(dir, "train.csv"), filepath.Join(dir, "validation.csv"), filepath.Join(dir, "test.csv"))
	require.NoError(t, err)
	assert.Len(t, ds.Train, 1)
	assert.Len(t, ds.Validation, 1)
	assert.Len(t, ds.Test, 1)

	_, err = LoadDatasets(filepath.Join(dir, "missing.csv"), "", "")
	assert.Error(t, err)
}

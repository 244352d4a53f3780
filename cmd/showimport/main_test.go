package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcatalog/internal/catalog"
	"showcatalog/internal/importer"
)

const titlesCSV = `show_id,type,title,director,cast,country,date_added,release_year,rating,duration,listed_in,description
s1,Movie,Dick Johnson Is Dead,Kirsten Johnson,,United States,"September 25, 2021",2020,PG-13,90 min,Documentaries,A filmmaker stages her father's death.
s2,TV Show,Blood & Water,,"Ama Qamata, Khosi Ngema",South Africa,"September 24, 2021",2021,TV-MA,2 Seasons,"International TV Shows, TV Dramas",A Cape Town teen sets out to find her sister.
s3,Movie,Bad Date,,,,25/09/2021,2021,R,90 min,Dramas,Fails to parse.
`

func TestShowImport_FromStdinIntoSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader(titlesCSV), &out)
	cmd.SetArgs([]string{
		"-",
		"--database.driver", "sqlite3",
		"--database.path", dbPath,
		"--database.auto_migrate",
		"--observability.metrics_enabled=false",
		"--observability.logging.level", "error",
	})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "rows: 3 created: 2 updated: 0 failed: 1")
	assert.Contains(t, out.String(), "line 4 (s3)")
}

func TestShowImport_RequiresSource(t *testing.T) {
	cmd := newRootCommand(strings.NewReader(""), &bytes.Buffer{})
	cmd.SetArgs([]string{"--database.driver", "sqlite3"})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "no import source")
}

func TestShowImport_RejectsMissingFile(t *testing.T) {
	cmd := newRootCommand(strings.NewReader(""), &bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.csv"), "--database.driver", "sqlite3"})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, importer.Report{
		Rows: 2, Created: 1, Failed: 1,
		Errors: []importer.RowError{{Line: 3, Key: "", Err: &catalog.ValidationError{Kind: catalog.KindMissingKey, Message: "show_id is required"}}},
	})
	assert.Equal(t, "rows: 2 created: 1 updated: 0 failed: 1\n  line 3 (): [MISSING_KEY] show_id is required\n", out.String())
}

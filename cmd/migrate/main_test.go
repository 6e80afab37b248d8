package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_UpThenVersion(t *testing.T) {
	t.Setenv("DOCX_DB_DRIVER", "sqlite")
	t.Setenv("DOCX_DB_SQLITE_PATH", filepath.Join(t.TempDir(), "ledger.db"))

	require.NoError(t, run([]string{"up"}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, run([]string{"version"}, &out))
	assert.Equal(t, "driver: sqlite, version: 2, dirty: false\n", out.String())

	require.NoError(t, run([]string{"steps", "-1"}, &bytes.Buffer{}))
	out.Reset()
	require.NoError(t, run([]string{"version"}, &out))
	assert.Contains(t, out.String(), "version: 1,")
}

func TestRun_UsageErrors(t *testing.T) {
	t.Setenv("DOCX_DB_DRIVER", "sqlite")
	t.Setenv("DOCX_DB_SQLITE_PATH", filepath.Join(t.TempDir(), "ledger.db"))

	assert.ErrorIs(t, run(nil, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run([]string{"sideways"}, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run([]string{"steps"}, &bytes.Buffer{}), errUsage)
	assert.Error(t, run([]string{"steps", "two"}, &bytes.Buffer{}))
}

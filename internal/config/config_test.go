package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, 32, c.Server.BodyLimitMB)
	assert.Equal(t, "auto", c.Convert.Derive)
	assert.True(t, c.Convert.Validate)
	assert.Equal(t, "canonical", c.Convert.Columns)
	assert.Equal(t, "csv", c.Convert.Format)
	assert.True(t, c.Convert.OpeningFromStatement)
	assert.False(t, c.Convert.InheritDates)
	assert.True(t, c.Extract.Pdftotext)
	assert.False(t, c.Extract.OCR)
	assert.True(t, c.Rules.Extend)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
convert:
  derive: never
  columns: simple
  format: xlsx
rules:
  denylist: ["BROUGHT FORWARD", "SUBTOTAL"]
log:
  level: debug
`), 0o644))

	t.Setenv("STATEMENT_SERVER_ADDR", ":9100")
	t.Setenv("STATEMENT_CONVERT_VALIDATE", "false")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("derive", "auto", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--derive", "always"}))

	c, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, ":9100", c.Server.Addr, "env overrides file")
	assert.False(t, c.Convert.Validate)
	assert.Equal(t, "always", c.Convert.Derive, "flag overrides file")
	assert.Equal(t, "debug", c.Log.Level, "unset flag does not override file")
	assert.Equal(t, "simple", c.Convert.Columns)
	assert.Equal(t, "xlsx", c.Convert.Format)
	assert.Equal(t, []string{"BROUGHT FORWARD", "SUBTOTAL"}, c.Rules.Denylist)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"derive":     {"STATEMENT_CONVERT_DERIVE", "sometimes"},
		"columns":    {"STATEMENT_CONVERT_COLUMNS", "date,amount"},
		"format":     {"STATEMENT_CONVERT_FORMAT", "pdf"},
		"body limit": {"STATEMENT_SERVER_BODY_LIMIT_MB", "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(env[0], env[1])

			_, err := Load("", nil)
			assert.Error(t, err)
		})
	}
}

func TestValidate_JSONFormat(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STATEMENT_CONVERT_FORMAT", "json")

	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "json", c.Convert.Format)
}

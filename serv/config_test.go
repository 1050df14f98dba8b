package serv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYaml(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadDbConfig(t *testing.T) {
	path := writeYaml(t, `
auth:
  mode: INLINE
  byCredentials:
    - user: myUser
      password: myCoolPassword
    - user: myOtherUser
      hashedPassword: 5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8
readOnly: true
corsOrigin: "*"
useOnlyStoredStatements: true
storedStatements:
  - id: Q1
    sql: SELECT 1
macros:
  - id: M1
    statements:
      - SELECT 1
    execution:
      onStartup: true
      webService:
        authToken: tok
`)

	conf, err := readDbConfig(path)
	require.NoError(t, err)

	require.NotNil(t, conf.Auth)
	assert.Equal(t, authModeInline, conf.Auth.Mode)
	assert.Equal(t, defaultAuthErrorCode, conf.Auth.AuthErrorCode)
	require.Len(t, conf.Auth.ByCredentials, 2)
	assert.Equal(t, "myCoolPassword", conf.Auth.ByCredentials[0].Password)

	assert.True(t, conf.ReadOnly)
	assert.Equal(t, "*", conf.CORSOrigin)
	assert.True(t, conf.UseOnlyStoredStatements)
	assert.Equal(t, defaultJournalMode, conf.JournalMode)

	require.Len(t, conf.StoredStatements, 1)
	assert.Equal(t, "SELECT 1", conf.StoredStatements[0].SQL)

	require.Len(t, conf.Macros, 1)
	m := conf.Macros[0]
	assert.True(t, m.Execution.OnStartup)
	require.NotNil(t, m.Execution.WebService)
	assert.Equal(t, defaultAuthErrorCode, m.Execution.WebService.AuthErrorCode)

	require.NoError(t, conf.validate())
}

func TestReadDbConfigExplicitAuthErrorCode(t *testing.T) {
	path := writeYaml(t, `
auth:
  mode: HTTP_BASIC
  authErrorCode: 404
  byCredentials:
    - user: u
      password: p
`)

	conf, err := readDbConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 404, conf.Auth.AuthErrorCode)
}

func TestDefaultDbConfig(t *testing.T) {
	conf := defaultDbConfig()
	assert.Equal(t, defaultJournalMode, conf.JournalMode)
	assert.Nil(t, conf.Auth)
	require.NoError(t, conf.validate())
}

func TestDbConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*DbConfig)
		msg  string
	}{
		{
			"bad journal mode",
			func(c *DbConfig) { c.JournalMode = "BOGUS" },
			"invalid journalMode",
		},
		{
			"bad auth mode",
			func(c *DbConfig) {
				c.Auth = &Auth{Mode: "COOKIE", ByQuery: "SELECT 1"}
			},
			"auth.mode",
		},
		{
			"auth with both sources",
			func(c *DbConfig) {
				c.Auth = &Auth{
					Mode:          authModeInline,
					ByQuery:       "SELECT 1",
					ByCredentials: []Credentials{{User: "u", Password: "p"}},
				}
			},
			"exactly one of auth.byQuery and auth.byCredentials",
		},
		{
			"auth with neither source",
			func(c *DbConfig) { c.Auth = &Auth{Mode: authModeInline} },
			"exactly one of auth.byQuery and auth.byCredentials",
		},
		{
			"credential without password",
			func(c *DbConfig) {
				c.Auth = &Auth{
					Mode:          authModeInline,
					ByCredentials: []Credentials{{User: "u"}},
				}
			},
			"neither password nor hashedPassword",
		},
		{
			"duplicate stored statement",
			func(c *DbConfig) {
				c.StoredStatements = []StoredStatement{
					{ID: "Q", SQL: "SELECT 1"},
					{ID: "Q", SQL: "SELECT 2"},
				}
			},
			"duplicate id 'Q'",
		},
		{
			"stored statement without sql",
			func(c *DbConfig) {
				c.StoredStatements = []StoredStatement{{ID: "Q"}}
			},
			"both id and sql are required",
		},
		{
			"macro without statements",
			func(c *DbConfig) { c.Macros = []Macro{{ID: "M"}} },
			"macro 'M' has no statements",
		},
		{
			"duplicate macro",
			func(c *DbConfig) {
				c.Macros = []Macro{
					{ID: "M", Statements: []string{"SELECT 1"}},
					{ID: "M", Statements: []string{"SELECT 2"}},
				}
			},
			"duplicate id 'M'",
		},
		{
			"backup without files to keep",
			func(c *DbConfig) {
				c.Backup = &BackupConfig{BackupDir: os.TempDir()}
			},
			"backup.numFiles",
		},
		{
			"backup dir missing",
			func(c *DbConfig) {
				c.Backup = &BackupConfig{BackupDir: "/no/such/dir", NumFiles: 1}
			},
			"backup dir does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := defaultDbConfig()
			tt.mod(conf)
			err := conf.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to do")

	require.NoError(t, (&Config{MemDbs: []string{"m"}}).Validate())
	require.NoError(t, (&Config{ServeDir: t.TempDir()}).Validate())

	err = (&Config{ServeDir: "/no/such/dir"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve-dir does not exist")
}

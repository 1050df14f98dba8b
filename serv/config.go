package serv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ws4sql/ws4sql/internal/util"
)

const (
	// Authentication modes for a database
	authModeHTTPBasic = "HTTP_BASIC"
	authModeInline    = "INLINE"

	defaultAuthErrorCode = 401
	defaultJournalMode   = "WAL"
)

// Configuration for the ws4sql service
type Config struct {
	// Host to bind the web service to
	BindHost string

	// Port for the web service
	Port int

	// Paths of file-based databases, each optionally followed by
	// ::<yamlPath> to override the companion config file location
	Dbs []string

	// Ids of memory-based databases, each optionally followed by
	// ::<yamlPath> pointing to the companion config file
	MemDbs []string

	// Directory to serve with the builtin HTTP server
	ServeDir string

	// Index file for the served directory
	IndexFile string

	// Version of the running binary, injected by the CLI
	Version string
}

// Validate checks that the service configuration is usable
func (c *Config) Validate() error {
	if len(c.Dbs) == 0 && len(c.MemDbs) == 0 && c.ServeDir == "" {
		return errors.New("no database nor serve-dir specified, nothing to do")
	}
	if c.ServeDir != "" && !util.IsDir(util.ResolveTilde(c.ServeDir)) {
		return fmt.Errorf("serve-dir does not exist: %s", c.ServeDir)
	}
	return nil
}

// DbConfig is the per-database companion YAML model
type DbConfig struct {
	Auth                    *Auth             `mapstructure:"auth"`
	JournalMode             string            `mapstructure:"journalMode"`
	ReadOnly                bool              `mapstructure:"readOnly"`
	CORSOrigin              string            `mapstructure:"corsOrigin"`
	UseOnlyStoredStatements bool              `mapstructure:"useOnlyStoredStatements"`
	StoredStatements        []StoredStatement `mapstructure:"storedStatements"`
	Macros                  []Macro           `mapstructure:"macros"`
	Backup                  *BackupConfig     `mapstructure:"backup"`
}

// Auth configures the authentication gate for the data endpoint
type Auth struct {
	Mode          string        `mapstructure:"mode"`
	AuthErrorCode int           `mapstructure:"authErrorCode"`
	ByQuery       string        `mapstructure:"byQuery"`
	ByCredentials []Credentials `mapstructure:"byCredentials"`
}

// Credentials is one user entry of an auth byCredentials list
type Credentials struct {
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	HashedPassword string `mapstructure:"hashedPassword"`
}

// StoredStatement is a named server-side SQL text, referenced as ^id
type StoredStatement struct {
	ID  string `mapstructure:"id"`
	SQL string `mapstructure:"sql"`
}

// ExecutionWebService configures the HTTP trigger of a macro or backup
type ExecutionWebService struct {
	AuthErrorCode   int    `mapstructure:"authErrorCode"`
	AuthToken       string `mapstructure:"authToken"`
	HashedAuthToken string `mapstructure:"hashedAuthToken"`
}

// Execution configures when a macro or backup runs
type Execution struct {
	OnCreate   bool                 `mapstructure:"onCreate"`
	OnStartup  bool                 `mapstructure:"onStartup"`
	Period     int                  `mapstructure:"period"`
	WebService *ExecutionWebService `mapstructure:"webService"`
}

// Macro is a named, ordered sequence of statements
type Macro struct {
	ID                 string    `mapstructure:"id"`
	DisableTransaction bool      `mapstructure:"disableTransaction"`
	Statements         []string  `mapstructure:"statements"`
	Execution          Execution `mapstructure:"execution"`
}

// BackupConfig configures periodic and on-demand snapshots of a database
type BackupConfig struct {
	BackupDir string    `mapstructure:"backupDir"`
	NumFiles  int       `mapstructure:"numFiles"`
	Execution Execution `mapstructure:"execution"`
}

// readDbConfig reads and decodes a per-database companion YAML file.
// Unknown keys are ignored.
func readDbConfig(yamlPath string) (*DbConfig, error) {
	vi := viper.New()
	vi.SetConfigFile(yamlPath)
	vi.SetConfigType("yaml")

	if err := vi.ReadInConfig(); err != nil {
		return nil, err
	}

	conf := &DbConfig{}
	if err := vi.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}

	conf.normalize()
	return conf, nil
}

// defaultDbConfig returns the configuration used when no companion YAML exists
func defaultDbConfig() *DbConfig {
	conf := &DbConfig{}
	conf.normalize()
	return conf
}

// normalize applies the documented defaults
func (c *DbConfig) normalize() {
	if c.JournalMode == "" {
		c.JournalMode = defaultJournalMode
	}
	if c.Auth != nil && c.Auth.AuthErrorCode == 0 {
		c.Auth.AuthErrorCode = defaultAuthErrorCode
	}
	for i := range c.Macros {
		if ws := c.Macros[i].Execution.WebService; ws != nil && ws.AuthErrorCode == 0 {
			ws.AuthErrorCode = defaultAuthErrorCode
		}
	}
	if c.Backup != nil {
		if ws := c.Backup.Execution.WebService; ws != nil && ws.AuthErrorCode == 0 {
			ws.AuthErrorCode = defaultAuthErrorCode
		}
	}
}

// journalModes accepted by PRAGMA journal_mode. The value is interpolated
// into the pragma so it must come from this list.
var journalModes = map[string]bool{
	"DELETE":   true,
	"TRUNCATE": true,
	"PERSIST":  true,
	"MEMORY":   true,
	"WAL":      true,
	"OFF":      true,
}

// validate checks the invariants of a per-database configuration
func (c *DbConfig) validate() error {
	if !journalModes[strings.ToUpper(c.JournalMode)] {
		return fmt.Errorf("invalid journalMode: %s", c.JournalMode)
	}

	if a := c.Auth; a != nil {
		if a.Mode != authModeHTTPBasic && a.Mode != authModeInline {
			return fmt.Errorf("auth.mode must be %s or %s", authModeHTTPBasic, authModeInline)
		}
		if (len(a.ByCredentials) == 0) == (a.ByQuery == "") {
			return errors.New("exactly one of auth.byQuery and auth.byCredentials must be provided")
		}
		for _, cred := range a.ByCredentials {
			if cred.User == "" {
				return errors.New("auth.byCredentials: user is required")
			}
			if cred.Password == "" && cred.HashedPassword == "" {
				return fmt.Errorf("auth.byCredentials: user '%s' has neither password nor hashedPassword", cred.User)
			}
		}
	}

	ids := map[string]bool{}
	for _, ss := range c.StoredStatements {
		if ss.ID == "" || ss.SQL == "" {
			return errors.New("storedStatements: both id and sql are required")
		}
		if ids[ss.ID] {
			return fmt.Errorf("storedStatements: duplicate id '%s'", ss.ID)
		}
		ids[ss.ID] = true
	}

	mids := map[string]bool{}
	for _, m := range c.Macros {
		if m.ID == "" {
			return errors.New("macros: id is required")
		}
		if mids[m.ID] {
			return fmt.Errorf("macros: duplicate id '%s'", m.ID)
		}
		mids[m.ID] = true
		if len(m.Statements) == 0 {
			return fmt.Errorf("macro '%s' has no statements", m.ID)
		}
	}

	if b := c.Backup; b != nil {
		if b.NumFiles < 1 {
			return errors.New("backup.numFiles must be at least 1")
		}
		if b.BackupDir == "" {
			return errors.New("backup.backupDir is required")
		}
		if !util.IsDir(util.ResolveTilde(b.BackupDir)) {
			return fmt.Errorf("backup dir does not exist: %s", b.BackupDir)
		}
	}

	return nil
}

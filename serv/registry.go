package serv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ws4sql/ws4sql/internal/util"
)

// toYamlPath derives the default companion file from the database path:
// same directory, same stem, .yaml extension
func toYamlPath(dbPath string) string {
	ext := filepath.Ext(dbPath)
	return strings.TrimSuffix(dbPath, ext) + ".yaml"
}

// toBaseName derives the database name from the file stem
func toBaseName(dbPath string) string {
	base := filepath.Base(dbPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadDbConfig reads the companion YAML, falling back to defaults when
// the file does not exist
func loadDbConfig(yamlPath string, log *zap.SugaredLogger) (*DbConfig, error) {
	if yamlPath == "" || !util.FileExists(yamlPath) {
		log.Infof("config file not found (%s): assuming defaults", yamlPath)
		return defaultDbConfig(), nil
	}
	conf, err := readDbConfig(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
	}
	return conf, nil
}

// newDb assembles one Db record: validation, connection, resolution of
// stored statements and macros, startup macros and backup, pragmas.
// On a startup failure for a freshly created file the file is removed.
func newDb(name, path string, isMemory bool, conf *DbConfig) (*Db, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	if !isMemory && conf.Backup != nil {
		backupDir, err := filepath.Abs(util.ResolveTilde(conf.Backup.BackupDir))
		if err != nil {
			return nil, err
		}
		dbDir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		if backupDir == dbDir {
			return nil, fmt.Errorf("backup dir cannot be the directory of the database file: %s", backupDir)
		}
	}

	isNewDb := isMemory || !util.FileExists(path)

	storedStatements := make(map[string]string, len(conf.StoredStatements))
	for _, ss := range conf.StoredStatements {
		storedStatements[ss.ID] = ss.SQL
	}

	macros, err := resolveMacros(conf, storedStatements)
	if err != nil {
		return nil, err
	}

	sqldb, err := openSQLite(path, isMemory, name)
	if err != nil {
		return nil, err
	}

	db := &Db{
		Name:             name,
		Path:             path,
		IsMemory:         isMemory,
		Conf:             conf,
		storedStatements: storedStatements,
		macros:           macros,
		sqldb:            sqldb,
	}

	cleanup := func() {
		db.Close() //nolint:errcheck
		if isNewDb && !isMemory {
			os.Remove(path) //nolint:errcheck
		}
	}

	if err := bootstrapMacros(db, isNewDb); err != nil {
		cleanup()
		return nil, err
	}

	if err := bootstrapBackup(db, isNewDb); err != nil {
		cleanup()
		return nil, err
	}

	if err := db.applyPragmas(); err != nil {
		cleanup()
		return nil, err
	}

	return db, nil
}

// composeDBMap builds the registry from the CLI inputs. Names must be
// unique across file-backed and in-memory databases.
func composeDBMap(conf *Config, log *zap.SugaredLogger) (map[string]*Db, error) {
	dbs := make(map[string]*Db)

	install := func(db *Db) error {
		if _, dup := dbs[db.Name]; dup {
			return fmt.Errorf("duplicate database name: %s", db.Name)
		}
		dbs[db.Name] = db
		return nil
	}

	for _, arg := range conf.Dbs {
		dbPath, yamlPath := util.SplitOnDoubleColon(arg)
		dbPath = util.ResolveTilde(dbPath)
		if yamlPath == "" {
			yamlPath = toYamlPath(dbPath)
		} else {
			yamlPath = util.ResolveTilde(yamlPath)
		}

		dbConf, err := loadDbConfig(yamlPath, log)
		if err != nil {
			return nil, err
		}

		db, err := newDb(toBaseName(dbPath), dbPath, false, dbConf)
		if err != nil {
			return nil, err
		}
		if err := install(db); err != nil {
			db.Close() //nolint:errcheck
			return nil, err
		}
	}

	for _, arg := range conf.MemDbs {
		name, yamlPath := util.SplitOnDoubleColon(arg)
		if name == "" {
			return nil, fmt.Errorf("invalid mem-db argument: %s", arg)
		}
		if yamlPath != "" {
			yamlPath = util.ResolveTilde(yamlPath)
		}

		dbConf, err := loadDbConfig(yamlPath, log)
		if err != nil {
			return nil, err
		}

		db, err := newDb(name, "", true, dbConf)
		if err != nil {
			return nil, err
		}
		if err := install(db); err != nil {
			db.Close() //nolint:errcheck
			return nil, err
		}
	}

	return dbs, nil
}

// startWorkers spawns the periodic macro and backup goroutines of every
// database. Workers terminate with the process.
func startWorkers(dbs map[string]*Db, log *zap.SugaredLogger) {
	for _, db := range dbs {
		for _, m := range db.macros {
			if m.Execution.Period > 0 {
				go periodicMacro(db, m, log)
			}
		}
		if bkp := db.Conf.Backup; bkp != nil && bkp.Execution.Period > 0 {
			go periodicBackup(db, log)
		}
	}
}

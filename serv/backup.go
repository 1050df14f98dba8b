package serv

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ws4sql/ws4sql/internal/util"
)

// backupFilename derives the snapshot name from the source stem and the
// current time: <stem>_<YYYYMMDD-HHMM>[.ext], placed in dir
func backupFilename(dir, sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := fmt.Sprintf("%s_%s%s", stem, util.NowCompact(), ext)
	return filepath.Join(dir, name)
}

// doBackup snapshots the database with VACUUM INTO under the database
// lock, then enforces the retention policy on the backup directory
func doBackup(db *Db) *Response {
	bkp := db.Conf.Backup
	dir := util.ResolveTilde(bkp.BackupDir)

	if !util.IsDir(dir) {
		return newErrResponse(http.StatusNotFound, -1,
			fmt.Sprintf("Backup dir '%s' not found", dir))
	}

	file := backupFilename(dir, db.backupSourcePath())
	if util.FileExists(file) {
		return newErrResponse(http.StatusConflict, -1,
			fmt.Sprintf("File '%s' already exists", file))
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.sqldb.Exec("VACUUM INTO ?", file); err != nil {
		return newErrResponse(http.StatusInternalServerError, -1, err.Error())
	}

	if err := util.DeleteOldFiles(dir, bkp.NumFiles); err != nil {
		return newErrResponse(http.StatusInternalServerError, -1,
			fmt.Sprintf("Database backed up but error in deleting old files: %s", err))
	}

	backupsTotal.WithLabelValues(db.Name).Inc()
	return newOKResponse(nil)
}

// bootstrapBackup performs the creation/startup snapshot during registry
// composition. A failure here is fatal for the database being composed.
func bootstrapBackup(db *Db, isNewDb bool) error {
	bkp := db.Conf.Backup
	if bkp == nil {
		return nil
	}
	if !bkp.Execution.OnStartup && !(isNewDb && bkp.Execution.OnCreate) {
		return nil
	}

	res := doBackup(db)
	if !res.Success {
		return fmt.Errorf("backup of database '%s': %s", db.Name, res.Message)
	}
	return nil
}

// periodicBackup snapshots the database every Execution.Period minutes.
// The first run happens one full period after startup.
func periodicBackup(db *Db, log *zap.SugaredLogger) {
	bkp := db.Conf.Backup

	ticker := time.NewTicker(time.Duration(bkp.Execution.Period) * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		res := doBackup(db)
		if res.Success {
			log.Infof("backup executed for db '%s'", db.Name)
		} else {
			log.Errorf("periodic backup of db '%s': %s", db.Name, res.Message)
		}
	}
}

// backupHandler triggers a backup over HTTP, gated by the webService
// token of the backup plan
func backupHandler(s *Service, db *Db) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bkp := db.Conf.Backup
		if bkp == nil {
			newErrResponse(http.StatusNotFound, -1,
				fmt.Sprintf("Database '%s' doesn't have a backup node", db.Name)).write(w)
			return
		}

		ws := bkp.Execution.WebService
		if ws == nil {
			newErrResponse(http.StatusNotFound, -1,
				fmt.Sprintf("Database '%s' doesn't have a backup.execution.webService node", db.Name)).write(w)
			return
		}

		if !checkCreds(tokenParam(r), ws.AuthToken, ws.HashedAuthToken) {
			time.Sleep(authFailureDelay)
			newErrResponse(ws.AuthErrorCode, -1,
				fmt.Sprintf("In database '%s', backup: token mismatch", db.Name)).write(w)
			return
		}

		doBackup(db).write(w)
	}
}

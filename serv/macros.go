package serv

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// resolveMacros expands stored-statement references in every macro body.
// Resolution happens once, at load time; the returned map is frozen.
func resolveMacros(conf *DbConfig, storedStatements map[string]string) (map[string]*Macro, error) {
	macros := make(map[string]*Macro, len(conf.Macros))
	for i := range conf.Macros {
		m := conf.Macros[i]
		statements := make([]string, len(m.Statements))
		for j, statement := range m.Statements {
			resolved, err := resolveSQL(statement, storedStatements, false)
			if err != nil {
				return nil, fmt.Errorf("in macro '%s': %w", m.ID, err)
			}
			statements[j] = resolved
		}
		m.Statements = statements
		macros[m.ID] = &m
	}
	return macros, nil
}

// execMacroNoTx runs the statements sequentially on the bare connection.
// The first failure stops execution; earlier statements stay applied.
func execMacroNoTx(db *Db, m *Macro) *Response {
	var results []ResponseItem
	for i, statement := range m.Statements {
		res, err := db.sqldb.Exec(statement)
		if err != nil {
			return newErrResponse(http.StatusInternalServerError, i, err.Error())
		}
		rowsUpdated, err := res.RowsAffected()
		if err != nil {
			return newErrResponse(http.StatusInternalServerError, i, err.Error())
		}
		results = append(results, ResponseItem{Success: true, RowsUpdated: &rowsUpdated})
	}
	return newOKResponse(results)
}

// execMacro runs a macro under the database lock, inside one transaction
// unless the macro disables it
func execMacro(db *Db, m *Macro) *Response {
	db.mu.Lock()
	defer db.mu.Unlock()

	if m.DisableTransaction {
		return execMacroNoTx(db, m)
	}

	tx, err := db.sqldb.Begin()
	if err != nil {
		return newErrResponse(http.StatusInternalServerError, -1,
			fmt.Sprintf("transaction open failed for macro '%s'", m.ID))
	}

	var results []ResponseItem
	for i, statement := range m.Statements {
		res, err := tx.Exec(statement)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return newErrResponse(http.StatusInternalServerError, i, err.Error())
		}
		rowsUpdated, err := res.RowsAffected()
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return newErrResponse(http.StatusInternalServerError, i, err.Error())
		}
		results = append(results, ResponseItem{Success: true, RowsUpdated: &rowsUpdated})
	}

	if err := tx.Commit(); err != nil {
		return newErrResponse(http.StatusInternalServerError, -1,
			fmt.Sprintf("commit failed for macro '%s'", m.ID))
	}
	return newOKResponse(results)
}

// bootstrapMacros runs the creation and startup macros during registry
// composition. Any failure aborts the composition of this database.
func bootstrapMacros(db *Db, isNewDb bool) error {
	for _, m := range db.Conf.Macros {
		macro := db.macros[m.ID]
		if macro.Execution.OnStartup || (isNewDb && macro.Execution.OnCreate) {
			res := execMacro(db, macro)
			if !res.Success {
				idx := -1
				if res.ReqIdx != nil {
					idx = *res.ReqIdx
				}
				return fmt.Errorf("in macro '%s' of db '%s', index %d: %s",
					macro.ID, db.Name, idx, res.Message)
			}
		}
	}
	return nil
}

// periodicMacro re-runs a macro every Execution.Period minutes. The first
// run happens one full period after startup; there is no immediate tick.
func periodicMacro(db *Db, m *Macro, log *zap.SugaredLogger) {
	ticker := time.NewTicker(time.Duration(m.Execution.Period) * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		res := execMacro(db, m)
		if res.Success {
			macroRunsTotal.WithLabelValues(db.Name, m.ID).Inc()
			log.Infof("macro '%s' executed for db '%s'", m.ID, db.Name)
		} else {
			log.Errorf("periodic macro '%s' of db '%s': %s", m.ID, db.Name, res.Message)
		}
	}
}

// macroHandler triggers a macro over HTTP. The macro must carry a
// webService execution node; its token gates the call.
func macroHandler(s *Service, db *Db) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		macroID := chi.URLParam(r, "macroId")

		m, ok := db.macros[macroID]
		if !ok {
			newErrResponse(http.StatusNotFound, -1,
				fmt.Sprintf("Database '%s' doesn't have a macro named '%s'", db.Name, macroID)).write(w)
			return
		}

		ws := m.Execution.WebService
		if ws == nil {
			newErrResponse(http.StatusNotFound, -1,
				fmt.Sprintf("In database '%s', macro '%s' doesn't have a webService node", db.Name, macroID)).write(w)
			return
		}

		if !checkCreds(tokenParam(r), ws.AuthToken, ws.HashedAuthToken) {
			time.Sleep(authFailureDelay)
			newErrResponse(ws.AuthErrorCode, -1,
				fmt.Sprintf("In database '%s', macro '%s': token mismatch", db.Name, macroID)).write(w)
			return
		}

		res := execMacro(db, m)
		if res.Success {
			macroRunsTotal.WithLabelValues(db.Name, m.ID).Inc()
		}
		res.write(w)
	}
}

// tokenParam extracts the optional token query parameter
func tokenParam(r *http.Request) *string {
	if !r.URL.Query().Has("token") {
		return nil
	}
	token := r.URL.Query().Get("token")
	return &token
}

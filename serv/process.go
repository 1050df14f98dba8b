package serv

import (
	"database/sql"
	"encoding/json"
	"net/http"
)

// itemError is the outcome of a failed transaction item. Failures travel
// as data, not as Go errors: the caller decides between recording them
// per-item (noFail) and turning them into the envelope error.
type itemError struct {
	statusCode int
	message    string
}

// execQuery prepares and runs one query item inside the transaction,
// materializing all rows
func execQuery(tx *sql.Tx, sqlText string, values json.RawMessage) (ResponseItem, *itemError) {
	args, err := decodeValues(values)
	if err != nil {
		return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
	}

	rows, err := tx.Query(sqlText, args...)
	if err != nil {
		return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
	}
	defer rows.Close() //nolint:errcheck

	resultSet, err := readRows(rows)
	if err != nil {
		return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
	}

	return ResponseItem{Success: true, ResultSet: resultSet}, nil
}

// execStatement runs one statement item, either once (with or without
// bound values) or once per valuesBatch entry on a single prepared
// statement
func execStatement(tx *sql.Tx, sqlText string, values json.RawMessage, valuesBatch []json.RawMessage) (ResponseItem, *itemError) {
	if valuesBatch == nil {
		args, err := decodeValues(values)
		if err != nil {
			return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
		}
		res, err := tx.Exec(sqlText, args...)
		if err != nil {
			return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
		}
		rowsUpdated, err := res.RowsAffected()
		if err != nil {
			return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
		}
		return ResponseItem{Success: true, RowsUpdated: &rowsUpdated}, nil
	}

	stmt, err := tx.Prepare(sqlText)
	if err != nil {
		return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
	}
	defer stmt.Close() //nolint:errcheck

	batch := make([]int64, 0, len(valuesBatch))
	for _, v := range valuesBatch {
		args, err := decodeValues(v)
		if err != nil {
			return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
		}
		res, err := stmt.Exec(args...)
		if err != nil {
			return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
		}
		rowsUpdated, err := res.RowsAffected()
		if err != nil {
			return ResponseItem{}, &itemError{http.StatusInternalServerError, err.Error()}
		}
		batch = append(batch, rowsUpdated)
	}

	return ResponseItem{Success: true, RowsUpdatedBatch: batch}, nil
}

// execItem validates and dispatches one transaction item
func execItem(tx *sql.Tx, db *Db, item *ReqTransactionItem) (ResponseItem, *itemError) {
	hasQuery := item.Query != nil
	hasStatement := item.Statement != nil

	if hasQuery == hasStatement {
		return ResponseItem{}, &itemError{
			http.StatusBadRequest,
			"exactly one of 'query' and 'statement' must be provided",
		}
	}

	if hasQuery {
		if item.ValuesBatch != nil {
			return ResponseItem{}, &itemError{
				http.StatusBadRequest,
				"valuesBatch cannot be used with a query",
			}
		}
		sqlText, err := resolveSQL(*item.Query, db.storedStatements, db.Conf.UseOnlyStoredStatements)
		if err != nil {
			return ResponseItem{}, &itemError{http.StatusConflict, err.Error()}
		}
		return execQuery(tx, sqlText, item.Values)
	}

	if item.Values != nil && item.ValuesBatch != nil {
		return ResponseItem{}, &itemError{
			http.StatusBadRequest,
			"at most one of values and values_batch must be provided",
		}
	}

	sqlText, err := resolveSQL(*item.Statement, db.storedStatements, db.Conf.UseOnlyStoredStatements)
	if err != nil {
		return ResponseItem{}, &itemError{http.StatusConflict, err.Error()}
	}
	return execStatement(tx, sqlText, item.Values, item.ValuesBatch)
}

// processRequest executes the items of a request strictly in order inside
// one SQLite transaction, holding the database lock throughout. The first
// failure of a non-noFail item rolls everything back and becomes the
// envelope error; noFail failures are recorded per-item and execution
// continues. Commit happens iff no envelope error was recorded.
func processRequest(db *Db, req *Request) *Response {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.sqldb.Begin()
	if err != nil {
		return newErrResponse(http.StatusInternalServerError, -1, err.Error())
	}

	var results []ResponseItem
	var failedCode, failedIdx int
	var failedMsg string
	failed := false

	for idx := range req.Transaction {
		item := &req.Transaction[idx]
		ri, itemErr := execItem(tx, db, item)

		if itemErr != nil && !item.NoFail {
			failed = true
			failedCode, failedIdx, failedMsg = itemErr.statusCode, idx, itemErr.message
			break
		}

		if itemErr != nil {
			results = append(results, ResponseItem{Success: false, Error: itemErr.message})
		} else {
			results = append(results, ri)
		}
	}

	if failed {
		if err := tx.Rollback(); err != nil {
			return newErrResponse(http.StatusInternalServerError, -1, err.Error())
		}
		return newErrResponse(failedCode, failedIdx, failedMsg)
	}

	if err := tx.Commit(); err != nil {
		return newErrResponse(http.StatusInternalServerError, -1, err.Error())
	}
	return newOKResponse(results)
}

package serv

import (
	"fmt"
	"strings"
)

// resolveSQL expands a ^id stored-statement reference against the given
// map. Plain SQL is passed through, unless onlyStored restricts the
// data plane to stored statements.
func resolveSQL(sql string, storedStatements map[string]string, onlyStored bool) (string, error) {
	if id, ok := strings.CutPrefix(sql, "^"); ok {
		resolved, ok := storedStatements[id]
		if !ok {
			return "", fmt.Errorf("stored statement '%s' not found", sql)
		}
		return resolved, nil
	}
	if onlyStored {
		return "", fmt.Errorf("useOnlyStoredStatements set but a stored statement wasn't used")
	}
	return sql, nil
}

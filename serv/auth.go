package serv

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/ws4sql/ws4sql/internal/util"
)

// checkCreds reports whether the given password matches the configured
// one. With neither a plain nor a hashed password configured, access is
// granted. Hashed comparison is against the hex SHA-256 of the given
// password, case-insensitively.
func checkCreds(given *string, password, hashedPassword string) bool {
	switch {
	case password == "" && hashedPassword == "":
		return true
	case given == nil:
		return false
	case password != "":
		return *given == password
	default:
		return strings.EqualFold(hashedPassword, util.Sha256Hex(*given))
	}
}

// authByCredentials matches the user case-insensitively against the
// configured list, then checks the password
func authByCredentials(user, password string, creds []Credentials) bool {
	for _, c := range creds {
		if strings.EqualFold(user, c.User) {
			return checkCreds(&password, c.Password, c.HashedPassword)
		}
	}
	return false
}

// authByQuery runs the configured probe with :user and :password bound;
// authentication succeeds iff the query returns at least one row. The
// probe runs on the database's own connection, under its lock.
func authByQuery(db *Db, user, password, query string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.sqldb.Query(query,
		sql.Named("user", user), sql.Named("password", password))
	if err != nil {
		return false
	}
	defer rows.Close() //nolint:errcheck

	return rows.Next()
}

// processAuth resolves the authentication decision for a data-plane
// request, extracting credentials per the configured mode
func processAuth(db *Db, r *http.Request, inline *ReqCredentials) bool {
	ac := db.Conf.Auth

	var user, password string
	switch ac.Mode {
	case authModeHTTPBasic:
		var ok bool
		user, password, ok = r.BasicAuth()
		if !ok {
			return false
		}
	case authModeInline:
		if inline == nil {
			return false
		}
		user, password = inline.User, inline.Password
	default:
		return false
	}

	if len(ac.ByCredentials) > 0 {
		return authByCredentials(user, password, ac.ByCredentials)
	}
	if ac.ByQuery != "" {
		return authByQuery(db, user, password, ac.ByQuery)
	}
	return false
}

package serv

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ws4sql/ws4sql/internal/util"
)

func strPtr(s string) *string { return &s }

func TestCheckCreds(t *testing.T) {
	hashed := util.Sha256Hex("secret")

	tests := []struct {
		name     string
		given    *string
		password string
		hashed   string
		want     bool
	}{
		{"no password configured", nil, "", "", true},
		{"no password configured, token given", strPtr("x"), "", "", true},
		{"plain match", strPtr("secret"), "secret", "", true},
		{"plain mismatch", strPtr("wrong"), "secret", "", false},
		{"plain missing", nil, "secret", "", false},
		{"hashed match", strPtr("secret"), "", hashed, true},
		{"hashed match uppercase config", strPtr("secret"), "", "2BB80D537B1DA3E38BD30361AA855686BDE0EACD7162FEF6A25FE97BF527A25B", true},
		{"hashed mismatch", strPtr("wrong"), "", hashed, false},
		{"hashed missing", nil, "", hashed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkCreds(tt.given, tt.password, tt.hashed))
		})
	}
}

func TestAuthByCredentials(t *testing.T) {
	creds := []Credentials{
		{User: "alice", Password: "pw1"},
		{User: "bob", HashedPassword: util.Sha256Hex("pw2")},
	}

	assert.True(t, authByCredentials("alice", "pw1", creds))
	assert.True(t, authByCredentials("ALICE", "pw1", creds))
	assert.False(t, authByCredentials("alice", "pw2", creds))
	assert.True(t, authByCredentials("bob", "pw2", creds))
	assert.False(t, authByCredentials("carol", "pw1", creds))
}

func TestAuthByQuery(t *testing.T) {
	db := newTestDb(t, nil)
	mustExec(t, db,
		"CREATE TABLE AUTH (USER TEXT, PASSWORD TEXT)",
		"INSERT INTO AUTH VALUES ('alice', 'pw1')")

	query := "SELECT 1 FROM AUTH WHERE USER = :user AND PASSWORD = :password"
	assert.True(t, authByQuery(db, "alice", "pw1", query))
	assert.False(t, authByQuery(db, "alice", "wrong", query))
	assert.False(t, authByQuery(db, "mallory", "pw1", query))
}

func TestDataEndpointInlineAuth(t *testing.T) {
	shortenAuthDelay(t)

	conf := defaultDbConfig()
	conf.Auth = &Auth{
		Mode:          authModeInline,
		AuthErrorCode: defaultAuthErrorCode,
		ByCredentials: []Credentials{{User: "alice", Password: "pw1"}},
	}
	db := newTestDb(t, conf)
	srv := startTestServer(t, newTestService(t, db))

	body := Request{
		Credentials: &ReqCredentials{User: "alice", Password: "pw1"},
		Transaction: []ReqTransactionItem{{Query: strPtr("SELECT 1 AS X")}},
	}
	hres, res := postJSON(t, srv.URL+"/testdb", body, nil)
	assert.Equal(t, http.StatusOK, hres.StatusCode)
	require.Len(t, res.Results, 1)

	body.Credentials.Password = "wrong"
	hres, res = postJSON(t, srv.URL+"/testdb", body, nil)
	assert.Equal(t, http.StatusUnauthorized, hres.StatusCode)
	assert.Equal(t, "Authorization failed", res.Message)

	body.Credentials = nil
	hres, _ = postJSON(t, srv.URL+"/testdb", body, nil)
	assert.Equal(t, http.StatusUnauthorized, hres.StatusCode)
}

func TestDataEndpointBasicAuth(t *testing.T) {
	delay := shortenAuthDelay(t)

	conf := defaultDbConfig()
	conf.Auth = &Auth{
		Mode:          authModeHTTPBasic,
		AuthErrorCode: defaultAuthErrorCode,
		ByCredentials: []Credentials{{User: "alice", HashedPassword: util.Sha256Hex("pw1")}},
	}
	db := newTestDb(t, conf)
	srv := startTestServer(t, newTestService(t, db))

	body := Request{Transaction: []ReqTransactionItem{{Query: strPtr("SELECT 1 AS X")}}}

	hres, _ := postJSON(t, srv.URL+"/testdb", body, func(r *http.Request) {
		r.SetBasicAuth("alice", "pw1")
	})
	assert.Equal(t, http.StatusOK, hres.StatusCode)

	start := time.Now()
	hres, _ = postJSON(t, srv.URL+"/testdb", body, func(r *http.Request) {
		r.SetBasicAuth("alice", "wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, hres.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), delay)

	// no credentials at all
	hres, _ = postJSON(t, srv.URL+"/testdb", body, nil)
	assert.Equal(t, http.StatusUnauthorized, hres.StatusCode)
}

func TestAuthPrecedesTransactionValidation(t *testing.T) {
	shortenAuthDelay(t)

	conf := defaultDbConfig()
	conf.Auth = &Auth{
		Mode:          authModeInline,
		AuthErrorCode: defaultAuthErrorCode,
		ByCredentials: []Credentials{{User: "alice", Password: "pw1"}},
	}
	db := newTestDb(t, conf)
	srv := startTestServer(t, newTestService(t, db))

	// an unauthenticated caller must not learn whether the transaction
	// would have been rejected
	hres, err := http.Post(srv.URL+"/testdb", "application/json",
		strings.NewReader(`{"transaction":[]}`))
	require.NoError(t, err)
	hres.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusUnauthorized, hres.StatusCode)

	hres, err = http.Post(srv.URL+"/testdb", "application/json",
		strings.NewReader(`{"credentials":{"user":"alice","password":"pw1"},"transaction":[]}`))
	require.NoError(t, err)
	hres.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, hres.StatusCode)
}

func TestDataEndpointCustomAuthErrorCode(t *testing.T) {
	shortenAuthDelay(t)

	conf := defaultDbConfig()
	conf.Auth = &Auth{
		Mode:          authModeInline,
		AuthErrorCode: http.StatusNotFound,
		ByCredentials: []Credentials{{User: "alice", Password: "pw1"}},
	}
	db := newTestDb(t, conf)
	srv := startTestServer(t, newTestService(t, db))

	body := Request{Transaction: []ReqTransactionItem{{Query: strPtr("SELECT 1")}}}
	hres, _ := postJSON(t, srv.URL+"/testdb", body, nil)
	assert.Equal(t, http.StatusNotFound, hres.StatusCode)
}

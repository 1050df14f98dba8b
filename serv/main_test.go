package serv

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestDb opens a throwaway in-memory database for one test
func newTestDb(t *testing.T, conf *DbConfig) *Db {
	t.Helper()
	if conf == nil {
		conf = defaultDbConfig()
	}
	db, err := newDb("testdb", "", true, conf)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	return db
}

// newTestService wraps a database in a service suitable for httptest
func newTestService(t *testing.T, dbs ...*Db) *Service {
	t.Helper()
	zlog := zap.NewNop()
	m := make(map[string]*Db, len(dbs))
	for _, db := range dbs {
		m[db.Name] = db
	}
	return &Service{
		conf: &Config{},
		log:  zlog.Sugar(),
		zlog: zlog,
		dbs:  m,
	}
}

// shortenAuthDelay keeps tests that exercise denied requests fast while
// still going through the delay path
func shortenAuthDelay(t *testing.T) time.Duration {
	t.Helper()
	old := authFailureDelay
	authFailureDelay = 50 * time.Millisecond
	t.Cleanup(func() { authFailureDelay = old })
	return authFailureDelay
}

// mustExec applies setup DDL/DML directly on the database connection
func mustExec(t *testing.T, db *Db, sqls ...string) {
	t.Helper()
	for _, s := range sqls {
		_, err := db.sqldb.Exec(s)
		require.NoError(t, err)
	}
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

// postJSON performs a data-plane POST against a test server
func postJSON(t *testing.T, url string, body any, decorate func(*http.Request)) (*http.Response, *Response) {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	hres, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer hres.Body.Close() //nolint:errcheck

	var res Response
	require.NoError(t, json.NewDecoder(hres.Body).Decode(&res))
	return hres, &res
}

// startTestServer serves the assembled routes of a test service
func startTestServer(t *testing.T, s *Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

package serv

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ws4sql/ws4sql/internal/util"
)

const (
	healthRoute  = "/health"
	metricsRoute = "/metrics"
)

// authFailureDelay slows down credential guessing; every denied request
// pays it before the error is written
var authFailureDelay = 1000 * time.Millisecond

// routesHandler mounts the endpoint group of every database plus the
// health, metrics and optional static routes
func routesHandler(s *Service) http.Handler {
	mux := chi.NewRouter()

	mux.Get(healthRoute, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	})
	mux.Method(http.MethodGet, metricsRoute, promhttp.Handler())

	for name, db := range s.dbs {
		db := db
		mux.Route("/"+name, func(r chi.Router) {
			if db.Conf.CORSOrigin != "" {
				r.Use(corsHandler(db))
			}
			r.Post("/", dataHandler(s, db))
			r.Post("/macro/{macroId}", macroHandler(s, db))
			r.Post("/backup", backupHandler(s, db))
		})
	}

	if s.conf.ServeDir != "" {
		mux.Handle("/*", staticHandler(util.ResolveTilde(s.conf.ServeDir), s.conf.IndexFile))
	}

	// tracing spans per request; a no-op unless the process configures a
	// trace provider
	return setServerHeader(otelhttp.NewHandler(mux, serverName))
}

// corsHandler builds the per-database CORS middleware. POST from the
// configured origin (or any, for the wildcard) is allowed, with the
// content-type header and, under HTTP_BASIC auth, authorization.
func corsHandler(db *Db) func(http.Handler) http.Handler {
	headers := []string{"Content-Type"}
	if a := db.Conf.Auth; a != nil && a.Mode == authModeHTTPBasic {
		headers = append(headers, "Authorization")
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{db.Conf.CORSOrigin},
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: headers,
	})
	return c.Handler
}

// dataHandler is the transaction endpoint of one database
func dataHandler(s *Service, db *Db) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isJSONContentType(r.Header.Get("Content-Type")) {
			writeCounted(db, w, newErrResponse(http.StatusUnsupportedMediaType, -1,
				"Content-Type must be application/json"))
			return
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCounted(db, w, newErrResponse(http.StatusBadRequest, -1,
				"invalid request body JSON: "+err.Error()))
			return
		}

		// authentication comes right after body extraction, before any
		// inspection of the transaction itself
		if ac := db.Conf.Auth; ac != nil {
			if !processAuth(db, r, req.Credentials) {
				time.Sleep(authFailureDelay)
				writeCounted(db, w, newErrResponse(ac.AuthErrorCode, -1, "Authorization failed"))
				return
			}
		}

		if len(req.Transaction) == 0 {
			writeCounted(db, w, newErrResponse(http.StatusBadRequest, -1,
				"transaction is empty"))
			return
		}

		res := processRequest(db, &req)
		transactionItemsTotal.WithLabelValues(db.Name).Add(float64(len(req.Transaction)))
		writeCounted(db, w, res)
	}
}

// writeCounted writes the response and bumps the request counter
func writeCounted(db *Db, w http.ResponseWriter, res *Response) {
	requestsTotal.WithLabelValues(db.Name, strconv.Itoa(res.StatusCode)).Inc()
	res.write(w)
}

// isJSONContentType accepts application/json with optional parameters
func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// staticHandler serves the configured directory, mapping directory
// requests to the configured index file
func staticHandler(dir, indexFile string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path += indexFile
		}
		fileServer.ServeHTTP(w, r)
	})
}

// setServerHeader sets the server header
func setServerHeader(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverName)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

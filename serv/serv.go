package serv

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serverName = "ws4sql"

// Service exposes a set of SQLite databases as an HTTP/JSON service
type Service struct {
	conf *Config
	log  *zap.SugaredLogger
	zlog *zap.Logger
	dbs  map[string]*Db
	srv  *http.Server
}

// NewService composes the database registry and prepares the HTTP
// surface. Composition is single-threaded; any error is fatal to the
// caller.
func NewService(conf *Config, zlog *zap.Logger) (*Service, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	log := zlog.Sugar()

	dbs, err := composeDBMap(conf, log)
	if err != nil {
		for _, db := range dbs {
			db.Close() //nolint:errcheck
		}
		return nil, err
	}

	s := &Service{
		conf: conf,
		log:  log,
		zlog: zlog,
		dbs:  dbs,
	}

	s.printDbInfo()
	return s, nil
}

// printDbInfo logs one profile line per database
func (s *Service) printDbInfo() {
	for _, db := range s.dbs {
		if v, err := db.sqliteVersion(); err == nil {
			s.log.Infof("sqlite version: %s", v)
			break
		}
	}

	for name, db := range s.dbs {
		var onCreate, onStartup, periodic, webService int
		for _, m := range db.macros {
			e := m.Execution
			if e.OnCreate {
				onCreate++
			}
			if e.OnStartup {
				onStartup++
			}
			if e.Period > 0 {
				periodic++
			}
			if e.WebService != nil {
				webService++
			}
		}

		s.log.Infof(
			"database '%s': %d stored statements, %d macros (%d on create, %d on startup, %d periodic, %d web service), read-only: %t",
			name, len(db.storedStatements), len(db.macros),
			onCreate, onStartup, periodic, webService, db.Conf.ReadOnly)
	}
}

// logStartup emits the structured startup banner
func (s *Service) logStartup(hostPort string) {
	ver := s.conf.Version
	if ver == "" {
		ver = "not-set"
	}

	fields := []zapcore.Field{
		zap.String("version", ver),
		zap.String("host-port", hostPort),
		zap.Int("databases", len(s.dbs)),
	}
	if s.conf.ServeDir != "" {
		fields = append(fields, zap.String("serve-dir", s.conf.ServeDir))
	}
	s.zlog.Info("ws4sql started", fields...)
}

// Handler returns the assembled HTTP handler, mainly for tests
func (s *Service) Handler() http.Handler {
	return routesHandler(s)
}

// Start runs the HTTP server until interrupted, then shuts down
// gracefully, closing every database connection
func (s *Service) Start() error {
	hostPort := fmt.Sprintf("%s:%d", s.conf.BindHost, s.conf.Port)

	s.srv = &http.Server{
		Addr:              hostPort,
		Handler:           routesHandler(s),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("shutdown signal received")
		}
		close(idleConnsClosed)
	}()

	s.srv.RegisterOnShutdown(func() {
		for name, db := range s.dbs {
			if err := db.Close(); err != nil {
				s.log.Warnf("closing database '%s': %s", name, err)
				continue
			}
			s.log.Infof("closed database connection: %s", name)
		}
		s.log.Info("shutdown complete")
	})

	startWorkers(s.dbs, s.log)
	s.logStartup(hostPort)

	l, err := net.Listen("tcp", hostPort)
	if err != nil {
		return fmt.Errorf("failed to init port: %w", err)
	}

	if err := s.srv.Serve(l); err != http.ErrServerClosed {
		return fmt.Errorf("failed to start: %w", err)
	}
	<-idleConnsClosed
	return nil
}

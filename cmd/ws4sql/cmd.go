package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ws4sql/ws4sql/serv"
	"github.com/ws4sql/ws4sql/internal/util"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log  *zap.SugaredLogger
	conf serv.Config
)

// Cmd is the entry point for the CLI
func Cmd() {
	jsonLogs := os.Getenv("GO_ENV") == "production"
	zlog := util.NewLogger(jsonLogs)
	log = zlog.Sugar()

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "ws4sql",
		Short: BuildDetails(),
		Run: func(*cobra.Command, []string) {
			cmdServe(zlog)
		},
	}

	fl := rootCmd.Flags()
	fl.StringVar(&conf.BindHost, "bind-host", "0.0.0.0", "the host to bind")
	fl.IntVar(&conf.Port, "port", 12321, "port for the web service")
	fl.StringArrayVar(&conf.Dbs, "db", nil,
		"repeatable; path of a file-based database, format: dbFilePath[::yamlFilePath]")
	fl.StringArrayVar(&conf.MemDbs, "mem-db", nil,
		"repeatable; config for a memory-based database, format: ID[::yamlFilePath]")
	fl.StringVar(&conf.ServeDir, "serve-dir", "", "directory to serve with the builtin HTTP server")
	fl.StringVar(&conf.IndexFile, "index-file", "index.html", "index file for serve-dir")

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

// cmdServe composes the registry and runs the service until interrupted
func cmdServe(zlog *zap.Logger) {
	conf.Version = version
	s, err := serv.NewService(&conf, zlog)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if err := s.Start(); err != nil {
		log.Fatalf("%s", err)
	}
}

package serv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws4sql_requests_total",
		Help: "Data-plane requests served, by database and status code.",
	}, []string{"db", "code"})

	transactionItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws4sql_transaction_items_total",
		Help: "Transaction items executed, by database.",
	}, []string{"db"})

	macroRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws4sql_macro_runs_total",
		Help: "Successful macro executions, by database and macro.",
	}, []string{"db", "macro"})

	backupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws4sql_backups_total",
		Help: "Successful backups, by database.",
	}, []string{"db"})
)

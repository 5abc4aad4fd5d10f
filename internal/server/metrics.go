package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktrail",
		Name:      "task_mutations_total",
		Help:      "Task lifecycle mutations by operation and outcome.",
	}, []string{"operation", "outcome"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktrail",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})
)

func observeMutation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errorCode(err)
	}
	mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

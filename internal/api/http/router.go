// Package http wires the HTTP surface: search queries, experiment
// lifecycle/results, internal replication, index pause/resume, and health.
package http

import (
	"github.com/gorilla/mux"

	"github.com/flapjack/flapjack/internal/api/recovery"
)

// Deps bundles every handler's dependencies so NewRouter stays a pure
// wiring function, matching the teacher's buildRouter shape.
type Deps struct {
	Search      *SearchHandler
	Experiments *ExperimentHandler
	Replication *ReplicationHandler
	Pause       *PauseHandler
	Health      *HealthHandler
}

// NewRouter builds the full route table over deps.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(recovery.Middleware)

	r.HandleFunc("/1/indexes/{index}/query", deps.Search.Query).Methods("POST")
	r.HandleFunc("/1/indexes/{index}/queries", deps.Search.MultiQuery).Methods("POST")

	r.HandleFunc("/2/abtests", deps.Experiments.Create).Methods("POST")
	r.HandleFunc("/2/abtests", deps.Experiments.List).Methods("GET")
	r.HandleFunc("/2/abtests/{id}", deps.Experiments.Get).Methods("GET")
	r.HandleFunc("/2/abtests/{id}", deps.Experiments.Update).Methods("PUT")
	r.HandleFunc("/2/abtests/{id}", deps.Experiments.Delete).Methods("DELETE")
	r.HandleFunc("/2/abtests/{id}/start", deps.Experiments.Start).Methods("POST")
	r.HandleFunc("/2/abtests/{id}/stop", deps.Experiments.Stop).Methods("POST")
	r.HandleFunc("/2/abtests/{id}/conclude", deps.Experiments.Conclude).Methods("POST")
	r.HandleFunc("/2/abtests/{id}/results", deps.Experiments.Results).Methods("GET")

	r.HandleFunc("/internal/replicate", deps.Replication.Replicate).Methods("POST")
	r.HandleFunc("/internal/ops", deps.Replication.Ops).Methods("GET")
	r.HandleFunc("/internal/status", deps.Replication.Status).Methods("GET")

	r.HandleFunc("/internal/pause/{index}", deps.Pause.Pause).Methods("POST")
	r.HandleFunc("/internal/resume/{index}", deps.Pause.Resume).Methods("POST")

	r.HandleFunc("/api/health", deps.Health.CheckHealth).Methods("GET")

	return r
}

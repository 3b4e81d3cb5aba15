package metrics

import (
	"net/http"

	gometrics "github.com/rcrowley/go-metrics"
)

// Metric names shared by services and the debug endpoint.
const (
	MatchJoined           = "matching.joined"
	MatchCreated          = "matching.created"
	MatchRaceLost         = "matching.race_lost"
	MatchStaleCandidate   = "matching.stale_candidate"
	MatchPoolReadFailed   = "matching.pool_read_failed"
	EncryptionUnavailable = "matching.encryption_unavailable"
	MatchScan             = "matching.scan"

	LifecycleSettled     = "lifecycle.settled"
	LifecycleClaimed     = "lifecycle.claimed"
	LifecycleExpired     = "lifecycle.expired"
	LifecycleUnconfirmed = "lifecycle.unconfirmed"
	LifecycleRejected    = "lifecycle.rejected"

	IndexerEvents  = "indexer.events"
	ReclaimerSwept = "reclaimer.swept"
)

// NewRegistry returns an isolated registry; a nil registry passed to Counter
// or Timer falls back to the process default.
func NewRegistry() gometrics.Registry {
	return gometrics.NewRegistry()
}

func Counter(r gometrics.Registry, name string) gometrics.Counter {
	if r == nil {
		r = gometrics.DefaultRegistry
	}

	return gometrics.GetOrRegisterCounter(name, r)
}

func Timer(r gometrics.Registry, name string) gometrics.Timer {
	if r == nil {
		r = gometrics.DefaultRegistry
	}

	return gometrics.GetOrRegisterTimer(name, r)
}

// Handler writes a JSON snapshot of r.
func Handler(r gometrics.Registry) http.HandlerFunc {
	if r == nil {
		r = gometrics.DefaultRegistry
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		gometrics.WriteJSONOnce(r, w)
	}
}

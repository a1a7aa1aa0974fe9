package metrics

import (
	"time"
)

// RecordTrial records one detection trial with its duration
func (r *Registry) RecordTrial(status string, duration time.Duration) {
	r.TrialsTotal.WithLabelValues(status).Inc()
	r.TrialDuration.Observe(duration.Seconds())
}

// RecordSearch records one completed search with its duration
func (r *Registry) RecordSearch(status string, duration time.Duration) {
	r.SearchesTotal.WithLabelValues(status).Inc()
	r.SearchDuration.Observe(duration.Seconds())
}

// RecordImprovement records a trial that beat the running best and the
// new best modularity
func (r *Registry) RecordImprovement(modularity float64) {
	r.BestImprovements.Inc()
	r.BestModularity.Set(modularity)
}

// RecordRemoteFrame records one frame moved by the remote transport
func (r *Registry) RecordRemoteFrame(direction, status string, bytes int) {
	r.RemoteFramesTotal.WithLabelValues(direction, status).Inc()
	if bytes > 0 {
		r.RemoteBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

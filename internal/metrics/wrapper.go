package metrics

import "time"

// Wrapper is the nil-safe view of Metrics handed to the orchestrator.
// A nil *Wrapper (or a wrapper around nil Metrics) silently drops all
// observations, so pipeline code never needs nil checks.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) ok() bool {
	return w != nil && w.m != nil
}

func (w *Wrapper) SweepOK(withdrawn, transferred int64) {
	if !w.ok() {
		return
	}
	w.m.SweepsOK.Inc()
	w.m.WithdrawnSats.Add(float64(withdrawn))
	w.m.TransferredSats.Add(float64(transferred))
}

func (w *Wrapper) SweepFailed() {
	if !w.ok() {
		return
	}
	w.m.SweepsFailed.Inc()
}

func (w *Wrapper) SweepPartial(withdrawn int64) {
	if !w.ok() {
		return
	}
	w.m.SweepsPartial.Inc()
	w.m.WithdrawnSats.Add(float64(withdrawn))
}

func (w *Wrapper) ReadRetry() {
	if !w.ok() {
		return
	}
	w.m.ReadRetries.Inc()
}

func (w *Wrapper) ObservePipeline(d time.Duration) {
	if !w.ok() {
		return
	}
	w.m.PipelineDuration.Observe(d.Seconds())
}

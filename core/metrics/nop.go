package metrics

type (
	nopCounter   struct{}
	nopGauge     struct{}
	nopHistogram struct{}
	nopTimer     struct{}
)

func (nopCounter) Inc()              {}
func (nopCounter) Add(float64)       {}
func (nopGauge) Set(float64)         {}
func (nopGauge) Inc()                {}
func (nopGauge) Dec()                {}
func (nopGauge) Add(float64)         {}
func (nopHistogram) Observe(float64) {}
func (nopTimer) ObserveDuration()    {}

// NopCounter returns a Counter that discards all observations.
func NopCounter() Counter { return nopCounter{} }

// NopGauge returns a Gauge that discards all observations.
func NopGauge() Gauge { return nopGauge{} }

// NopHistogram returns a Histogram that discards all observations.
func NopHistogram() Histogram { return nopHistogram{} }

// NopTimer returns a Timer that discards the observed duration.
func NopTimer() Timer { return nopTimer{} }

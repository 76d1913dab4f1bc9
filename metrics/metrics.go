package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SpinsTotal counts performed draws by wheel and drawn rarity.
	SpinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheel_spins_total",
			Help: "Spins performed, by wheel and rarity of the drawn reward.",
		},
		[]string{"wheel", "rarity"},
	)

	// ClaimsTotal counts claim attempts by result.
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheel_claims_total",
			Help: "Claim attempts by result (credited, already_claimed, not_found, error).",
		},
		[]string{"status"},
	)

	// SpinDuration tracks the latency of the spin request path.
	SpinDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "wheel_spin_duration_seconds",
			Help: "Duration of spin requests in seconds.",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"status"}, // success or failure
	)
)

// RecordSpinDuration records the duration of one spin request.
func RecordSpinDuration(status string, seconds float64) {
	SpinDuration.WithLabelValues(status).Observe(seconds)
}

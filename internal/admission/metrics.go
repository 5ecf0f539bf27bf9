package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "presensync",
	Name:      "admissions_total",
	Help:      "Attendance admission outcomes by result.",
}, []string{"outcome"})

var geoOutOfRangeTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "presensync",
	Name:      "geo_out_of_range_total",
	Help:      "Claims whose location fell outside the classroom radius.",
})

func countOutcome(err error) {
	if err == nil {
		admissionsTotal.WithLabelValues("accepted").Inc()
		return
	}
	if r := ReasonOf(err); r != "" {
		admissionsTotal.WithLabelValues(string(r)).Inc()
		return
	}
	admissionsTotal.WithLabelValues("error").Inc()
}

package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TrackerCollector bundles Prometheus metrics for the tracking loop, the TLE
// cache and the mount link.
type TrackerCollector struct {
	gatherer prometheus.Gatherer

	AzimuthError      prometheus.Gauge
	CommandedSpeed    prometheus.Gauge
	TargetAzimuth     prometheus.Gauge
	TargetAltitude    prometheus.Gauge
	ControllerMode    *prometheus.GaugeVec
	LinkState         *prometheus.GaugeVec
	TLERefreshes      *prometheus.CounterVec
	UnexpectedReplies prometheus.Counter
	ControllerTicks   prometheus.Histogram
}

// NewTrackerCollector registers tracker metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewTrackerCollector(reg prometheus.Registerer) (*TrackerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	azErr, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_azimuth_error_degrees",
		Help: "Unsigned circular distance between target azimuth and estimated mount azimuth.",
	}), "tracker_azimuth_error_degrees")
	if err != nil {
		return nil, err
	}
	speed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_commanded_speed_degrees_per_second",
		Help: "Last azimuth speed commanded to the mount.",
	}), "tracker_commanded_speed_degrees_per_second")
	if err != nil {
		return nil, err
	}
	targetAz, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_target_azimuth_degrees",
		Help: "Predicted azimuth of the tracked object.",
	}), "tracker_target_azimuth_degrees")
	if err != nil {
		return nil, err
	}
	targetAlt, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_target_altitude_degrees",
		Help: "Predicted altitude of the tracked object.",
	}), "tracker_target_altitude_degrees")
	if err != nil {
		return nil, err
	}
	mode, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracker_controller_mode",
		Help: "1 for the active controller mode, 0 otherwise.",
	}, []string{"mode"}), "tracker_controller_mode")
	if err != nil {
		return nil, err
	}
	link, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracker_link_state",
		Help: "1 for the current mount link state, 0 otherwise.",
	}, []string{"state"}), "tracker_link_state")
	if err != nil {
		return nil, err
	}
	refreshes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_tle_refresh_total",
		Help: "TLE refresh decisions, labeled by outcome (fresh, refreshed, failed).",
	}, []string{"outcome"}), "tracker_tle_refresh_total")
	if err != nil {
		return nil, err
	}
	unexpected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_link_unexpected_replies_total",
		Help: "Replies from the mount controller that did not match the expected protocol state.",
	}), "tracker_link_unexpected_replies_total")
	if err != nil {
		return nil, err
	}
	ticks, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_controller_tick_duration_seconds",
		Help:    "Time spent in one controller tick, including propagation.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "tracker_controller_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &TrackerCollector{
		gatherer:          gatherer,
		AzimuthError:      azErr,
		CommandedSpeed:    speed,
		TargetAzimuth:     targetAz,
		TargetAltitude:    targetAlt,
		ControllerMode:    mode,
		LinkState:         link,
		TLERefreshes:      refreshes,
		UnexpectedReplies: unexpected,
		ControllerTicks:   ticks,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TrackerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRefresh counts a TLE refresh outcome.
func (c *TrackerCollector) ObserveRefresh(outcome string) {
	if c == nil || c.TLERefreshes == nil {
		return
	}
	c.TLERefreshes.WithLabelValues(outcome).Inc()
}

// TickSample is the outcome of one controller tick.
type TickSample struct {
	Duration       time.Duration
	ErrorDegrees   float64
	Speed          float64
	TargetAzimuth  float64
	TargetAltitude float64
	Mode           string
	// Modes lists every mode label so inactive ones are reset to 0.
	Modes []string
}

// ObserveTick records one controller tick.
func (c *TrackerCollector) ObserveTick(s TickSample) {
	if c == nil {
		return
	}
	if c.ControllerTicks != nil {
		c.ControllerTicks.Observe(s.Duration.Seconds())
	}
	if c.AzimuthError != nil {
		c.AzimuthError.Set(s.ErrorDegrees)
	}
	if c.CommandedSpeed != nil {
		c.CommandedSpeed.Set(s.Speed)
	}
	if c.TargetAzimuth != nil {
		c.TargetAzimuth.Set(s.TargetAzimuth)
	}
	if c.TargetAltitude != nil {
		c.TargetAltitude.Set(s.TargetAltitude)
	}
	setOneHot(c.ControllerMode, s.Mode, s.Modes)
}

// SetLinkState marks state as the current link state among states.
func (c *TrackerCollector) SetLinkState(state string, states []string) {
	if c == nil {
		return
	}
	setOneHot(c.LinkState, state, states)
}

// IncUnexpectedReply counts an unrecognised mount reply.
func (c *TrackerCollector) IncUnexpectedReply() {
	if c == nil || c.UnexpectedReplies == nil {
		return
	}
	c.UnexpectedReplies.Inc()
}

func setOneHot(vec *prometheus.GaugeVec, current string, all []string) {
	if vec == nil {
		return
	}
	for _, v := range all {
		val := 0.0
		if v == current {
			val = 1
		}
		vec.WithLabelValues(v).Set(val)
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

var FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "woz",
	Subsystem: "hub",
	Name:      "frames",
}, []string{"type"})

var BadFrames = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "woz",
	Subsystem: "hub",
	Name:      "bad_frames",
})

var DroppedSessions = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "woz",
	Subsystem: "hub",
	Name:      "dropped_sessions",
})

// HubCollector reads the hub's gauges without touching the hub loop,
// so a scrape can never stall fan-out.
type HubCollector struct {
	hub *Hub

	panelSessions    *prometheus.Desc
	consumerSessions *prometheus.Desc
	logEntries       *prometheus.Desc
	broadcastBytes   *prometheus.Desc
}

func NewHubCollector(h *Hub) *HubCollector {
	return &HubCollector{
		hub: h,

		panelSessions: prometheus.NewDesc(
			"woz_hub_panel_sessions",
			"Panel sessions currently attached",
			nil, nil,
		),
		consumerSessions: prometheus.NewDesc(
			"woz_hub_consumer_sessions",
			"Consumer sessions currently attached",
			nil, nil,
		),
		logEntries: prometheus.NewDesc(
			"woz_hub_log_entries",
			"Frames held in the replay log",
			nil, nil,
		),
		broadcastBytes: prometheus.NewDesc(
			"woz_hub_broadcast_bytes_avg",
			"Mean size of a relayed frame in bytes",
			nil, nil,
		),
	}
}

func (hc *HubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- hc.panelSessions
	ch <- hc.consumerSessions
	ch <- hc.logEntries
	ch <- hc.broadcastBytes
}

func (hc *HubCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		hc.panelSessions,
		prometheus.GaugeValue,
		float64(hc.hub.panelCount.Load()),
	)
	ch <- prometheus.MustNewConstMetric(
		hc.consumerSessions,
		prometheus.GaugeValue,
		float64(hc.hub.consumerCount.Load()),
	)
	ch <- prometheus.MustNewConstMetric(
		hc.logEntries,
		prometheus.GaugeValue,
		float64(hc.hub.logSize.Load()),
	)
	ch <- prometheus.MustNewConstMetric(
		hc.broadcastBytes,
		prometheus.GaugeValue,
		hc.hub.broadcastSize.Val(),
	)
}

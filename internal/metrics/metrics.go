package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cansys/udp-can-bridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	UDPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_rx_frames_total",
		Help: "Total wire frames decoded from inbound UDP datagrams.",
	})
	UDPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_tx_frames_total",
		Help: "Total wire frames sent to the remote UDP peer.",
	})
	CANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_rx_frames_total",
		Help: "Total CAN frames read from SocketCAN channels.",
	})
	CANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_tx_frames_total",
		Help: "Total CAN frames written to SocketCAN channels.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed wire frames (invalid length, truncated).",
	})
	UnroutedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unrouted_frames_total",
		Help: "Total UDP frames whose identifier matched no configured range.",
	})
	PortMismatchFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "port_mismatch_frames_total",
		Help: "Total UDP frames routed to a channel owned by a different port.",
	})
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropped_frames_total",
		Help: "Total frames dropped on a would-block send or write.",
	})
	PartialDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partial_datagrams_total",
		Help: "Total datagrams whose length was not a multiple of the wire frame size.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrUDPRecv   = "udp_recv"
	ErrUDPSend   = "udp_send"
	ErrCANRead   = "can_read"
	ErrCANWrite  = "can_write"
	ErrDecode    = "decode"
	ErrPoll      = "poll"
	ErrProvision = "provision"
)

// StartHTTP serves Prometheus metrics at /metrics plus a /ready probe.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localUDPRx        uint64
	localUDPTx        uint64
	localCANRx        uint64
	localCANTx        uint64
	localMalformed    uint64
	localUnrouted     uint64
	localPortMismatch uint64
	localDropped      uint64
	localPartial      uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	UDPRx        uint64
	UDPTx        uint64
	CANRx        uint64
	CANTx        uint64
	Malformed    uint64
	Unrouted     uint64
	PortMismatch uint64
	Dropped      uint64
	Partial      uint64
	Errors       uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		UDPRx:        atomic.LoadUint64(&localUDPRx),
		UDPTx:        atomic.LoadUint64(&localUDPTx),
		CANRx:        atomic.LoadUint64(&localCANRx),
		CANTx:        atomic.LoadUint64(&localCANTx),
		Malformed:    atomic.LoadUint64(&localMalformed),
		Unrouted:     atomic.LoadUint64(&localUnrouted),
		PortMismatch: atomic.LoadUint64(&localPortMismatch),
		Dropped:      atomic.LoadUint64(&localDropped),
		Partial:      atomic.LoadUint64(&localPartial),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncUDPRx() {
	UDPRxFrames.Inc()
	atomic.AddUint64(&localUDPRx, 1)
}

func IncUDPTx() {
	UDPTxFrames.Inc()
	atomic.AddUint64(&localUDPTx, 1)
}

func IncCANRx() {
	CANRxFrames.Inc()
	atomic.AddUint64(&localCANRx, 1)
}

func IncCANTx() {
	CANTxFrames.Inc()
	atomic.AddUint64(&localCANTx, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncUnrouted() {
	UnroutedFrames.Inc()
	atomic.AddUint64(&localUnrouted, 1)
}

func IncPortMismatch() {
	PortMismatchFrames.Inc()
	atomic.AddUint64(&localPortMismatch, 1)
}

func IncDropped() {
	DroppedFrames.Inc()
	atomic.AddUint64(&localDropped, 1)
}

func IncPartial() {
	PartialDatagrams.Inc()
	atomic.AddUint64(&localPartial, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error label series so the first error does not pay
	// registration latency.
	for _, lbl := range []string{
		ErrUDPRecv, ErrUDPSend, ErrCANRead, ErrCANWrite,
		ErrDecode, ErrPoll, ErrProvision,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

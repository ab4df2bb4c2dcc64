package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chainkv/logx"
)

type SyncAbandonReason string

var (
	SyncTimeout      SyncAbandonReason = "timeout"
	SyncPeerDropped  SyncAbandonReason = "peer_dropped"
	SyncAbandonOther SyncAbandonReason = "other"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds  prometheus.Gauge
	chainLength        prometheus.Gauge
	peerCount          prometheus.Gauge
	appendedBlockCount prometheus.Counter
	replicatedBlocks   prometheus.Counter
	duplicateBlocks    prometheus.Counter
	syncSessionsOpen   prometheus.Gauge
	syncCompletedCount prometheus.Counter
	syncAbandonedCount *prometheus.CounterVec
	keyRequestCount    prometheus.Counter
	readRetryCount     prometheus.Counter
	readMissCount      prometheus.Counter
	panicCount         prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainkv_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		chainLength: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainkv_node_chain_length",
				Help: "The number of blocks in the local chain",
			},
		),
		peerCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainkv_node_peer_count",
				Help: "The total number of peer connections",
			},
		),
		appendedBlockCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_appended_block_count",
				Help: "The total number of blocks appended by local puts",
			},
		),
		replicatedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_replicated_block_count",
				Help: "The total number of blocks incorporated from remote peers",
			},
		),
		duplicateBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_duplicate_block_count",
				Help: "The total number of remote blocks dropped as already held",
			},
		),
		syncSessionsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainkv_node_sync_sessions_open",
				Help: "The number of reconciliation sessions currently in flight",
			},
		),
		syncCompletedCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_sync_completed_count",
				Help: "The total number of reconciliation sessions completed",
			},
		),
		syncAbandonedCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainkv_node_sync_abandoned_count",
				Help: "The total number of reconciliation sessions abandoned",
			},
			[]string{"reason"},
		),
		keyRequestCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_key_request_count",
				Help: "The total number of on-demand key requests broadcast to peers",
			},
		),
		readRetryCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_read_retry_count",
				Help: "The total number of read retries scheduled after a local miss",
			},
		),
		readMissCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_read_miss_count",
				Help: "The total number of reads that exhausted their retry budget",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainkv_node_panic_count",
				Help: "The total number of recovered panics in background workers",
			},
		),
	}
}

var nodeMetrics *nodePromMetrics

// InitMetrics initializes node metrics but does not expose them yet
func InitMetrics() {
	nodeMetrics = newNodePromMetrics()
	nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetChainLength(length int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.chainLength.Set(float64(length))
}

func SetPeerCount(peers int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.peerCount.Set(float64(peers))
}

func IncreaseAppendedBlockCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.appendedBlockCount.Inc()
}

func IncreaseReplicatedBlockCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.replicatedBlocks.Inc()
}

func IncreaseDuplicateBlockCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.duplicateBlocks.Inc()
}

func SetOpenSyncSessions(sessions int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.syncSessionsOpen.Set(float64(sessions))
}

func IncreaseSyncCompletedCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.syncCompletedCount.Inc()
}

func RecordSyncAbandoned(reason SyncAbandonReason) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.syncAbandonedCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func IncreaseKeyRequestCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.keyRequestCount.Inc()
}

func IncreaseReadRetryCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.readRetryCount.Inc()
}

func IncreaseReadMissCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.readMissCount.Inc()
}

func IncreasePanicCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.panicCount.Inc()
}

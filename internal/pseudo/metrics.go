package pseudo

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corefs-project/corefs/internal/alloc"
	"github.com/corefs-project/corefs/internal/cache"
	"github.com/corefs-project/corefs/internal/super"
)

// metrics mirrors the /super/iostat and /cache/cstats pseudo files as real
// prometheus.Collectors, so a mount can be scraped the ordinary way
// alongside the VFS-like pseudo namespace (SPEC_FULL.md domain stack:
// client_golang backs /super/iostat, /super/fsstat, and /cache/cstats).
type metrics struct {
	reg *prometheus.Registry

	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
	reads        prometheus.Counter
	writes       prometheus.Counter
	freeBlocks   prometheus.GaugeFunc
	freeInodes   prometheus.GaugeFunc
	cacheEntries *prometheus.GaugeVec
	allocFootBK  prometheus.GaugeFunc

	lastRead  uint64
	lastWrite uint64
	lastReads uint64
	lastWrts  uint64
}

func newMetrics(sb *super.Superblock, c *cache.Cache, a *alloc.Allocator) *metrics {
	m := &metrics{reg: prometheus.NewRegistry()}

	m.bytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corefs_io_bytes_read_total",
		Help: "Cumulative bytes read from the backing volume.",
	})
	m.bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corefs_io_bytes_written_total",
		Help: "Cumulative bytes written to the backing volume.",
	})
	m.reads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corefs_io_reads_total",
		Help: "Cumulative block read operations.",
	})
	m.writes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corefs_io_writes_total",
		Help: "Cumulative block write operations.",
	})
	m.freeBlocks = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "corefs_super_free_blocks",
		Help: "Free block count across all allocation groups.",
	}, func() float64 { return float64(sb.FreeBlocks.Load()) })
	m.freeInodes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "corefs_super_free_inodes",
		Help: "Free inode count across all allocation groups.",
	}, func() float64 { return float64(sb.FreeInodes.Load()) })
	m.cacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "corefs_cache_entries",
		Help: "Resident cache entries by bucket.",
	}, []string{"bucket"})
	m.allocFootBK = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "corefs_alloc_footprint_bytes",
		Help: "Bytes of bitmap memory held by the block allocator.",
	}, func() float64 { return float64(a.FootprintBytes()) })

	m.reg.MustRegister(m.bytesRead, m.bytesWritten, m.reads, m.writes,
		m.freeBlocks, m.freeInodes, m.cacheEntries, m.allocFootBK)

	m.refreshCounters(sb)
	m.refreshCacheEntries(c)
	return m
}

// refreshCounters advances the Counter deltas from sb's monotonic atomic
// totals. Counters only ever increase, so this must be called with the
// cumulative totals, never a reset value.
func (m *metrics) refreshCounters(sb *super.Superblock) {
	br, bw := sb.IO.BytesRead.Load(), sb.IO.BytesWritten.Load()
	rd, wr := sb.IO.Reads.Load(), sb.IO.Writes.Load()
	if delta := br - m.lastRead; delta > 0 {
		m.bytesRead.Add(float64(delta))
		m.lastRead = br
	}
	if delta := bw - m.lastWrite; delta > 0 {
		m.bytesWritten.Add(float64(delta))
		m.lastWrite = bw
	}
	if delta := rd - m.lastReads; delta > 0 {
		m.reads.Add(float64(delta))
		m.lastReads = rd
	}
	if delta := wr - m.lastWrts; delta > 0 {
		m.writes.Add(float64(delta))
		m.lastWrts = wr
	}
}

func (m *metrics) refreshCacheEntries(c *cache.Cache) {
	for bucket, n := range c.LenByBucket() {
		m.cacheEntries.WithLabelValues(bucket).Set(float64(n))
	}
}

// Handler returns an http.Handler serving r's metrics in the Prometheus
// exposition format, refreshing the counters and cache gauge first since
// both are pull-based snapshots of the underlying atomics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.metrics.refreshCounters(r.sb)
		r.metrics.refreshCacheEntries(r.cache)
		promhttp.HandlerFor(r.metrics.reg, promhttp.HandlerOpts{}).ServeHTTP(w, req)
	})
}

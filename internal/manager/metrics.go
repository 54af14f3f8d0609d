package manager

import "github.com/prometheus/client_golang/prometheus"

// collector exposes cache and binding state at scrape time.
type collector struct {
	m *Manager

	cacheEntries   *prometheus.Desc
	cacheBytes     *prometheus.Desc
	cacheBudget    *prometheus.Desc
	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheEvictions *prometheus.Desc
	bound          *prometheus.Desc
	chunksLoaded   *prometheus.Desc
	totalChunks    *prometheus.Desc
	binds          *prometheus.Desc
	bindFailures   *prometheus.Desc
	chunksFetched  *prometheus.Desc
	generations    *prometheus.Desc
}

// NewCollector returns a prometheus.Collector reporting m.
func NewCollector(m *Manager) prometheus.Collector {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("warmsetd_"+name, help, labels, nil)
	}
	return &collector{
		m:              m,
		cacheEntries:   d("cache_entries", "Chunks resident in the warm set cache."),
		cacheBytes:     d("cache_used_bytes", "Bytes held by the warm set cache."),
		cacheBudget:    d("cache_budget_bytes", "Byte budget of the warm set cache."),
		cacheHits:      d("cache_hits_total", "Cache reads that found their chunk."),
		cacheMisses:    d("cache_misses_total", "Cache reads that missed."),
		cacheEvictions: d("cache_evictions_total", "Chunks evicted from the cache."),
		bound:          d("model_bound", "1 when a model is bound.", "model_id"),
		chunksLoaded:   d("binding_chunks_loaded", "Chunks of the bound model fetched so far."),
		totalChunks:    d("binding_total_chunks", "Chunks in the bound manifest."),
		binds:          d("binds_total", "Bind attempts."),
		bindFailures:   d("bind_failures_total", "Bind attempts that failed."),
		chunksFetched:  d("chunks_fetched_total", "Chunks fetched from the repository."),
		generations:    d("generations_total", "Completed generations."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.cacheEntries, c.cacheBytes, c.cacheBudget, c.cacheHits, c.cacheMisses, c.cacheEvictions,
		c.bound, c.chunksLoaded, c.totalChunks, c.binds, c.bindFailures, c.chunksFetched, c.generations,
	} {
		ch <- d
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	st := c.m.cache.Stats()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.cacheEntries, float64(st.Entries))
	gauge(c.cacheBytes, float64(st.UsedBytes))
	gauge(c.cacheBudget, float64(st.BudgetBytes))
	counter(c.cacheHits, st.Hits)
	counter(c.cacheMisses, st.Misses)
	counter(c.cacheEvictions, st.Evictions)

	c.m.mu.RLock()
	b := c.m.binding
	var loaded, total uint32
	modelID := ""
	if b != nil {
		loaded, total, modelID = b.ChunksLoaded, b.TotalChunks, b.ModelID
	}
	binds, failures, fetched, gens := c.m.bindsTotal, c.m.bindFailures, c.m.chunksFetched, c.m.generations
	c.m.mu.RUnlock()

	if b != nil {
		gauge(c.bound, 1, modelID)
	}
	gauge(c.chunksLoaded, float64(loaded))
	gauge(c.totalChunks, float64(total))
	counter(c.binds, binds)
	counter(c.bindFailures, failures)
	counter(c.chunksFetched, fetched)
	counter(c.generations, gens)
}

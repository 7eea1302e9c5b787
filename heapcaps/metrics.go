package heapcaps

import "github.com/prometheus/client_golang/prometheus"

// Collector exports per-region accounting as Prometheus gauges.
type Collector struct {
	h *Heap

	free      *prometheus.Desc
	allocated *prometheus.Desc
	minFree   *prometheus.Desc
	largest   *prometheus.Desc
	blocks    *prometheus.Desc
}

// NewCollector returns a collector for h. Register it on a prometheus.Registerer.
func NewCollector(h *Heap) *Collector {
	labels := []string{"region", "caps"}
	return &Collector{
		h: h,
		free: prometheus.NewDesc("heapcaps_region_free_bytes",
			"Free bytes in the region", labels, nil),
		allocated: prometheus.NewDesc("heapcaps_region_allocated_bytes",
			"Allocated bytes in the region", labels, nil),
		minFree: prometheus.NewDesc("heapcaps_region_minimum_free_bytes",
			"Lowest free byte count observed since boot", labels, nil),
		largest: prometheus.NewDesc("heapcaps_region_largest_free_block_bytes",
			"Largest contiguous free span", labels, nil),
		blocks: prometheus.NewDesc("heapcaps_region_blocks",
			"Live blocks in the region", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.free
	ch <- c.allocated
	ch <- c.minFree
	ch <- c.largest
	ch <- c.blocks
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.h.Regions() {
		caps := r.Caps.String()
		ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(r.Free), r.Name, caps)
		ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.GaugeValue, float64(r.Allocated), r.Name, caps)
		ch <- prometheus.MustNewConstMetric(c.minFree, prometheus.GaugeValue, float64(r.MinimumFree), r.Name, caps)
		ch <- prometheus.MustNewConstMetric(c.largest, prometheus.GaugeValue, float64(r.LargestFreeBlock), r.Name, caps)
		ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(r.Blocks), r.Name, caps)
	}
}

package metrics

import "time"

// Counts is the minimal view a Collector needs of queue state; pkg/queue.Queue
// satisfies it.
type Counts interface {
	NumTaskIns() (int, error)
	NumTaskRes() (int, error)
	GetNodes() ([]int64, error)
}

// Collector periodically refreshes the row-count gauges from the queue core.
type Collector struct {
	counts   Counts
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector polling counts every interval.
func NewCollector(counts Counts, interval time.Duration) *Collector {
	return &Collector{counts: counts, interval: interval, stopCh: make(chan struct{})}
}

// Start begins collecting metrics in the background.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if n, err := c.counts.NumTaskIns(); err == nil {
		TaskInsTotal.Set(float64(n))
	}
	if n, err := c.counts.NumTaskRes(); err == nil {
		TaskResTotal.Set(float64(n))
	}
	if nodes, err := c.counts.GetNodes(); err == nil {
		NodesTotal.Set(float64(len(nodes)))
	}
}

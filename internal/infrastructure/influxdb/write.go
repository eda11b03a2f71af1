package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRunMetrics records the counters of one completed operation as a
// single point on the "housekeeper_runs" measurement. It satisfies the
// engine's MetricsSink contract.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteRunMetrics(operation string, counts map[string]int) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{}, len(counts))
	for name, value := range counts {
		fields[name] = value
	}
	if len(fields) == 0 {
		fields["runs"] = 1
	}

	point := write.NewPoint(
		"housekeeper_runs",
		map[string]string{
			"operation": operation,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

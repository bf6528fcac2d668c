package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading mirrors one accepted sensor reading into the
// sensor_readings measurement, tagged by module and channel.
//
// The write is non-blocking; points are batched and sent asynchronously.
// SQLite remains the system of record, so a lost point here is only a gap
// in dashboards, never in history queries.
func (c *Client) WriteReading(moduleID, kind string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"module_id": moduleID,
			"kind":      kind,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

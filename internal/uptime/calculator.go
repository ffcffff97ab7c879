package uptime

import (
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

const (
	minuteBuckets = 48 * 60 // two days at minute granularity
	hourBuckets   = 30 * 24 // thirty days at hour granularity
)

// Stats is the answer to a rolling-window query.
type Stats struct {
	Uptime    float64 `json:"uptime"` // 0..1
	AvgPingMs float64 `json:"avgPingMs"`
}

type bucket struct {
	key       int64 // unix minute or unix hour the slot currently holds
	up        int
	down      int
	pingSum   float64
	pingCount int
}

// Calculator keeps rolling per-minute and per-hour counters for one monitor.
// The 24h window reads minute buckets, the 30d window reads hour buckets.
// Rebuilding from the heartbeat store is deterministic, so an instance can be
// thrown away and rehydrated at any time.
type Calculator struct {
	mu      sync.Mutex
	minutes [minuteBuckets]bucket
	hours   [hourBuckets]bucket
}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Update records one beat at the current instant and returns the end of the
// minute bucket the beat landed in.
func (c *Calculator) Update(status domain.HeartbeatStatus, ping *float64) time.Time {
	return c.UpdateAt(time.Now().UTC(), status, ping)
}

// UpdateAt is Update with an explicit timestamp; rehydration replays history
// through it. MAINTENANCE beats leave the counters untouched.
func (c *Calculator) UpdateAt(t time.Time, status domain.HeartbeatStatus, ping *float64) time.Time {
	t = t.UTC()
	unixMinute := t.Unix() / 60
	unixHour := t.Unix() / 3600
	end := time.Unix((unixMinute+1)*60, 0).UTC()

	if status == domain.StatusMaintenance {
		return end
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record(&c.minutes[unixMinute%minuteBuckets], unixMinute, status, ping)
	record(&c.hours[unixHour%hourBuckets], unixHour, status, ping)
	return end
}

func record(b *bucket, key int64, status domain.HeartbeatStatus, ping *float64) {
	if b.key != key {
		*b = bucket{key: key}
	}
	if status == domain.StatusUp {
		b.up++
	} else {
		b.down++ // DOWN and PENDING both count against uptime
	}
	if ping != nil {
		b.pingSum += *ping
		b.pingCount++
	}
}

// Get24Hour returns uptime and average ping over the trailing 24 hours.
func (c *Calculator) Get24Hour() Stats {
	nowMinute := time.Now().UTC().Unix() / 60
	return c.sumMinutes(nowMinute - 24*60 + 1)
}

// Get30Day returns uptime and average ping over the trailing 30 days.
func (c *Calculator) Get30Day() Stats {
	nowHour := time.Now().UTC().Unix() / 3600
	oldest := nowHour - int64(hourBuckets) + 1

	c.mu.Lock()
	defer c.mu.Unlock()

	var up, down, pings int
	var pingSum float64
	for i := range c.hours {
		b := &c.hours[i]
		if b.key < oldest {
			continue
		}
		up += b.up
		down += b.down
		pingSum += b.pingSum
		pings += b.pingCount
	}
	return makeStats(up, down, pingSum, pings)
}

// AvgPingLastHour feeds the monitor.stats event.
func (c *Calculator) AvgPingLastHour() float64 {
	nowMinute := time.Now().UTC().Unix() / 60
	return c.sumMinutes(nowMinute - 59).AvgPingMs
}

func (c *Calculator) sumMinutes(oldest int64) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var up, down, pings int
	var pingSum float64
	for i := range c.minutes {
		b := &c.minutes[i]
		if b.key < oldest {
			continue
		}
		up += b.up
		down += b.down
		pingSum += b.pingSum
		pings += b.pingCount
	}
	return makeStats(up, down, pingSum, pings)
}

func makeStats(up, down int, pingSum float64, pings int) Stats {
	var s Stats
	if up+down > 0 {
		s.Uptime = float64(up) / float64(up+down)
	}
	if pings > 0 {
		s.AvgPingMs = pingSum / float64(pings)
	}
	return s
}

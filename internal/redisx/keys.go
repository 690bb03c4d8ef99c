package redisx

import "time"

const (
	// Cache current rate: rate:current:{currency} -> {"rate": "...", "updated_at": "..."}
	KeyRateCurrent = "rate:current:%s"

	// Maintenance notice: notice:current -> JSON blob
	KeyNotice = "notice:current"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLRateCache = 5 * time.Minute
	TTLDedup     = 48 * time.Hour
)

package redisx

import "time"

const (
	// View counter per food: view:{food_id} -> delta since last drain
	KeyViewCount = "view:%d"
	// Order counter per food: order:{food_id} -> ordered quantity since last drain
	KeyOrderCount = "order:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup = 48 * time.Hour
)

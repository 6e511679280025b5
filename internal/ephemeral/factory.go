package ephemeral

// Driver names accepted by the factory. The factory itself lives in
// internal/factory to keep this package free of driver imports.
const (
	DriverRedis  = "redis"
	DriverBadger = "badger"
)

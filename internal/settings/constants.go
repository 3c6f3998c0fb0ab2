package settings

import "time"

// Shared defaults.
const (
	// DefaultSiteName is the service name reported by the version endpoint.
	DefaultSiteName = "userdir"
	// DefaultPort is the fallback HTTP port.
	DefaultPort = 8319
	// DefaultUserGroupName is the seeded default group name.
	DefaultUserGroupName = "Default"
	// DefaultLoginRateLimit is the fallback login attempts per second per client (0 means unlimited).
	DefaultLoginRateLimit = 0
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "userdir:rl"
	// SnapshotPollInterval controls how often the directory snapshot is refreshed.
	SnapshotPollInterval = 2 * time.Second
	// SnapshotQueryTimeout bounds snapshot DB query duration.
	SnapshotQueryTimeout = 10 * time.Second
)

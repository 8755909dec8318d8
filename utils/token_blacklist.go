package utils

import (
	"context"
	"time"
)

// blacklistPrefix is shared with the account service, which writes revoked tokens on logout.
const blacklistPrefix = "jwt:blacklist:"

// IsTokenBlacklisted reports whether the account service revoked token before it expired.
// Without Redis there is no shared revocation list and every token is accepted.
func IsTokenBlacklisted(ctx context.Context, token string) bool {
	rc := GetRedis()
	if rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := rc.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		// fail open: a Redis outage must not log everybody out
		Sugar.Warnf("token blacklist check failed err=%v", err)
		return false
	}
	return n > 0
}

package discordhttp

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketType determines which part of an interaction keys a cooldown
// bucket.
type BucketType int

const (
	// BucketDefault shares one bucket across all invocations.
	BucketDefault BucketType = iota

	// BucketUser keys buckets by invoking user.
	BucketUser

	// BucketMember keys buckets by (guild, user).
	BucketMember

	// BucketGuild keys buckets by guild; DMs fall back to the user.
	BucketGuild

	// BucketChannel keys buckets by channel.
	BucketChannel
)

func (b BucketType) String() string {
	switch b {
	case BucketDefault:
		return "default"
	case BucketUser:
		return "user"
	case BucketMember:
		return "member"
	case BucketGuild:
		return "guild"
	case BucketChannel:
		return "channel"
	default:
		return fmt.Sprintf("BucketType(%d)", int(b))
	}
}

// key derives the bucket key for the given interaction context.
func (b BucketType) key(ctx *Context) string {
	switch b {
	case BucketUser:
		if u := ctx.User(); u != nil {
			return u.ID
		}
		return ""
	case BucketMember:
		userID := ""
		if u := ctx.User(); u != nil {
			userID = u.ID
		}
		return ctx.GuildID() + ":" + userID
	case BucketGuild:
		if g := ctx.GuildID(); g != "" {
			return g
		}
		if u := ctx.User(); u != nil {
			return u.ID
		}
		return ""
	case BucketChannel:
		return ctx.ChannelID()
	default:
		return ""
	}
}

// Cooldown limits a command to Rate invocations per Per window, bucketed
// by Bucket.
type Cooldown struct {
	Rate   int
	Per    time.Duration
	Bucket BucketType
}

// cooldownCache lazily creates one rate.Limiter per bucket key. Buckets
// idle longer than their window are swept on access, so the map doesn't
// grow without bound on user-keyed cooldowns.
type cooldownCache struct {
	mu       sync.Mutex
	cooldown Cooldown
	buckets  map[string]*cooldownBucket
}

type cooldownBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCooldownCache(c Cooldown) *cooldownCache {
	if c.Rate <= 0 {
		c.Rate = 1
	}
	if c.Per <= 0 {
		c.Per = time.Second
	}
	return &cooldownCache{
		cooldown: c,
		buckets:  map[string]*cooldownBucket{},
	}
}

// check consumes one token from the bucket for ctx. Returns a
// *CooldownError carrying the wait time when the bucket is exhausted.
func (c *cooldownCache) check(ctx *Context) error {
	key := c.cooldown.Bucket.key(ctx)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(now)

	bucket, ok := c.buckets[key]
	if !ok {
		bucket = &cooldownBucket{
			limiter: rate.NewLimiter(
				rate.Every(c.cooldown.Per/time.Duration(c.cooldown.Rate)),
				c.cooldown.Rate,
			),
		}
		c.buckets[key] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.Reserve()
	if !reservation.OK() {
		return &CooldownError{RetryAfter: c.cooldown.Per}
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return &CooldownError{RetryAfter: delay}
	}
	return nil
}

// sweep drops buckets that have been idle for longer than the cooldown
// window. Caller must hold c.mu.
func (c *cooldownCache) sweep(now time.Time) {
	for key, bucket := range c.buckets {
		if now.Sub(bucket.lastSeen) > c.cooldown.Per {
			delete(c.buckets, key)
		}
	}
}

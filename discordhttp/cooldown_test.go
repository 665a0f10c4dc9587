package discordhttp

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cooldownContext(userID string, guildID string, channelID string) *Context {
	return &Context{
		interaction: &discordgo.InteractionCreate{
			Interaction: &discordgo.Interaction{
				GuildID:   guildID,
				ChannelID: channelID,
				User:      &discordgo.User{ID: userID},
			},
		},
	}
}

func TestCooldownLimitsInvocations(t *testing.T) {
	cache := newCooldownCache(
		Cooldown{Rate: 2, Per: time.Minute, Bucket: BucketUser},
	)
	ctx := cooldownContext("user-1", "", "")

	require.NoError(t, cache.check(ctx))
	require.NoError(t, cache.check(ctx))

	err := cache.check(ctx)
	require.Error(t, err)

	var cooldownErr *CooldownError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Greater(t, cooldownErr.RetryAfter, time.Duration(0))

	// cooldown failures surface to users as check failures
	var check *CheckError
	assert.True(t, errors.As(err, &check))
	assert.Contains(t, check.Reason, "cooldown")
}

func TestCooldownBucketsAreIndependent(t *testing.T) {
	cache := newCooldownCache(
		Cooldown{Rate: 1, Per: time.Minute, Bucket: BucketUser},
	)

	require.NoError(t, cache.check(cooldownContext("user-1", "", "")))
	require.Error(t, cache.check(cooldownContext("user-1", "", "")))

	// a different user gets their own bucket
	require.NoError(t, cache.check(cooldownContext("user-2", "", "")))
}

func TestCooldownDefaultBucketIsShared(t *testing.T) {
	cache := newCooldownCache(
		Cooldown{Rate: 1, Per: time.Minute, Bucket: BucketDefault},
	)

	require.NoError(t, cache.check(cooldownContext("user-1", "", "")))
	require.Error(t, cache.check(cooldownContext("user-2", "", "")))
}

func TestBucketTypeKeys(t *testing.T) {
	ctx := cooldownContext("user-1", "guild-1", "channel-1")

	assert.Equal(t, "", BucketDefault.key(ctx))
	assert.Equal(t, "user-1", BucketUser.key(ctx))
	assert.Equal(t, "guild-1:user-1", BucketMember.key(ctx))
	assert.Equal(t, "guild-1", BucketGuild.key(ctx))
	assert.Equal(t, "channel-1", BucketChannel.key(ctx))

	// guild bucket falls back to the user in DMs
	dm := cooldownContext("user-1", "", "channel-1")
	assert.Equal(t, "user-1", BucketGuild.key(dm))
}

func TestBucketTypeString(t *testing.T) {
	assert.Equal(t, "user", BucketUser.String())
	assert.Equal(t, "guild", BucketGuild.String())
	assert.Equal(t, "BucketType(99)", BucketType(99).String())
}

func TestCooldownSweepEvictsIdleBuckets(t *testing.T) {
	cache := newCooldownCache(
		Cooldown{Rate: 1, Per: 10 * time.Millisecond, Bucket: BucketUser},
	)
	require.NoError(t, cache.check(cooldownContext("user-1", "", "")))

	cache.mu.Lock()
	cache.sweep(time.Now().Add(time.Second))
	size := len(cache.buckets)
	cache.mu.Unlock()

	assert.Zero(t, size)
}

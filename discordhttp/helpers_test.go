package discordhttp

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "héll", truncate("héllo", 4))
}

func TestChunkItems(t *testing.T) {
	chunks := chunkItems(2, 1, 2, 3, 4, 5)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 2}, chunks[0])
	assert.Equal(t, []int{5}, chunks[2])

	assert.Nil(t, chunkItems[int](3))
}

func TestContextLogger(t *testing.T) {
	_, ok := ContextLogger(context.Background())
	assert.False(t, ok)

	logger := slog.Default().With("test", t.Name())
	ctx := WithLogger(context.Background(), logger)
	got, ok := ContextLogger(ctx)
	require.True(t, ok)
	assert.Same(t, logger, got)
}

func TestStructToSlogValue(t *testing.T) {
	type inner struct {
		Secret string `json:"secret" log:"[redacted]"`
		Name   string `json:"name"`
		Empty  string `json:"empty"`
	}

	v := structToSlogValue(inner{Secret: "hunter2", Name: "x"})
	require.Equal(t, slog.KindGroup, v.Kind())

	attrs := map[string]string{}
	for _, attr := range v.Group() {
		attrs[attr.Key] = attr.Value.String()
	}
	assert.Equal(t, "[redacted]", attrs["secret"])
	assert.Equal(t, "x", attrs["name"])
	assert.NotContains(t, attrs, "empty")

	assert.Equal(t, slog.KindAny, structToSlogValue(nil).Kind())
}

func TestComponentRegistryValidation(t *testing.T) {
	r := newComponentRegistry()

	assert.Error(t, r.add("", func(*Context) (Response, error) { return nil, nil }))
	assert.Error(t, r.add("id", nil))
	assert.Error(t, r.addRegex("(", func(*Context) (Response, error) { return nil, nil }))

	require.NoError(t, r.add("id", func(*Context) (Response, error) { return nil, nil }))
	assert.Error(t, r.add("id", func(*Context) (Response, error) { return nil, nil }))

	_, ok := r.match("other")
	assert.False(t, ok)
}

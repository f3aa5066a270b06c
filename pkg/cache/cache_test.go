package cache

import (
	"context"
	"path/filepath"
	"testing"

	watt "watt/watt-client"
	"watt/watt-client/pkg/storage"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmpty(t *testing.T) {
	list, ok, err := New(storage.NewMemory()).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, list)
}

func TestRoundTripOnDisk(t *testing.T) {
	ctx := context.Background()
	kv, err := storage.Open(filepath.Join(t.TempDir(), "watt.db"))
	require.NoError(t, err)
	defer kv.Close()

	want := []watt.Feedback{
		{ID: 2, Author: "ana", Message: "second", CreatedAt: "2024-05-02"},
		{ID: 1, Author: "bia", Message: "first", CreatedAt: "2024-05-01"},
	}
	c := New(kv)
	require.NoError(t, c.Save(ctx, want))

	got, ok, err := c.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSaveEmptyList(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewMemory())
	require.NoError(t, c.Save(ctx, nil))

	got, ok, err := c.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestLoadLegacyArray(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, storage.KeyFeedbacks,
		`[{"id": 4, "usuario": "ana", "mensagem": "ok", "data": "2024-01-01"}]`))

	got, ok, err := New(kv).Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []watt.Feedback{{ID: 4, Author: "ana", Message: "ok", CreatedAt: "2024-01-01"}}, got)
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, storage.KeyFeedbacks, `{"version":`))

	_, ok, err := New(kv).Load(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLoadUnknownVersion(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, storage.KeyFeedbacks, `{"version": 99, "feedbacks": []}`))

	_, ok, err := New(kv).Load(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("restore after save yields the same list", prop.ForAll(
		func(messages []string) bool {
			list := make([]watt.Feedback, len(messages))
			for i, m := range messages {
				list[i] = watt.Feedback{ID: int64(len(messages) - i), Message: m, Author: "u"}
			}
			ctx := context.Background()
			c := New(storage.NewMemory())
			if err := c.Save(ctx, list); err != nil {
				return false
			}
			got, ok, err := c.Load(ctx)
			if err != nil || !ok || len(got) != len(list) {
				return false
			}
			for i := range list {
				if got[i] != list[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

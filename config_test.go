package depot

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DEPOT_CHUNK_SIZE", "4096")
	t.Setenv("DEPOT_MAX_CHUNK_CAPACITY", "32")
	t.Setenv("DEPOT_WORKERS", "3")
	t.Setenv("DEPOT_LOG_LEVEL", "WARN")
	t.Setenv("DEPOT_WRITE_GROUP_POLICY", "read-write-only")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, 32, cfg.MaxChunkCapacity)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
	assert.Equal(t, WriteGroupReadWriteOnly, cfg.WriteGroupPolicy)
	assert.Equal(t, DefaultMaxReadFences, cfg.MaxReadFences, "unset variables keep their defaults")
	assert.Equal(t, DefaultQueryCacheSize, cfg.QueryCacheSize)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"chunk too small", "DEPOT_CHUNK_SIZE", "16"},
		{"unknown level", "DEPOT_LOG_LEVEL", "loud"},
		{"unknown policy", "DEPOT_WRITE_GROUP_POLICY", "everything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestWorldConfigNormalized(t *testing.T) {
	w := Factory.NewWorld(nil, WithConfig(WorldConfig{ChunkSize: 8, WriteGroupPolicy: "bogus"}))
	cfg := w.Config()
	def := DefaultConfig()

	assert.Equal(t, def.ChunkSize, cfg.ChunkSize)
	assert.Equal(t, def.Workers, cfg.Workers)
	assert.Equal(t, def.MaxReadFences, cfg.MaxReadFences)
	assert.Equal(t, def.QueryCacheSize, cfg.QueryCacheSize)
	assert.Equal(t, WriteGroupExcludeUnlisted, cfg.WriteGroupPolicy)

	w = Factory.NewWorld(nil, WithChunkSize(2048), WithWorkers(2), WithWriteGroupPolicy(WriteGroupReadWriteOnly))
	cfg = w.Config()
	assert.Equal(t, 2048, cfg.ChunkSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, WriteGroupReadWriteOnly, cfg.WriteGroupPolicy)
	assert.Equal(t, 2, w.Scheduler().Workers())
}

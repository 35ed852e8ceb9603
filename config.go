package depot

import (
	"runtime"
	"strings"

	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const (
	DefaultChunkSize      = 16 * 1024
	DefaultMaxReadFences  = 8
	DefaultQueryCacheSize = 1024
	minChunkSize          = 64
)

// WriteGroupPolicy selects which requested types contribute their write
// groups to a query's exclusions when FilterWriteGroup is set.
type WriteGroupPolicy string

const (
	// WriteGroupExcludeUnlisted excludes unlisted write-group members of every
	// All or Any type.
	WriteGroupExcludeUnlisted WriteGroupPolicy = "exclude-unlisted"
	// WriteGroupReadWriteOnly only considers types requested read-write.
	WriteGroupReadWriteOnly WriteGroupPolicy = "read-write-only"
)

// WorldConfig configures a World. The zero value of a field selects its
// default.
type WorldConfig struct {
	// ChunkSize is the size in bytes of every chunk block.
	ChunkSize int
	// MaxChunkCapacity caps rows per chunk; 0 means limited by ChunkSize only.
	MaxChunkCapacity int
	// MaxChunks bounds the blocks the pool hands out; 0 is unbounded.
	MaxChunks        int
	Workers          int
	MaxReadFences    int
	QueryCacheSize   int
	LogLevel         zerolog.Level
	WriteGroupPolicy WriteGroupPolicy
}

type envConfig struct {
	ChunkSize        int    `config:"DEPOT_CHUNK_SIZE"`
	MaxChunkCapacity int    `config:"DEPOT_MAX_CHUNK_CAPACITY"`
	MaxChunks        int    `config:"DEPOT_MAX_CHUNKS"`
	Workers          int    `config:"DEPOT_WORKERS"`
	MaxReadFences    int    `config:"DEPOT_MAX_READ_FENCES"`
	QueryCacheSize   int    `config:"DEPOT_QUERY_CACHE_SIZE"`
	LogLevel         string `config:"DEPOT_LOG_LEVEL"`
	WriteGroupPolicy string `config:"DEPOT_WRITE_GROUP_POLICY"`
}

func DefaultConfig() WorldConfig {
	return WorldConfig{
		ChunkSize:        DefaultChunkSize,
		Workers:          runtime.GOMAXPROCS(0),
		MaxReadFences:    DefaultMaxReadFences,
		QueryCacheSize:   DefaultQueryCacheSize,
		LogLevel:         zerolog.InfoLevel,
		WriteGroupPolicy: WriteGroupExcludeUnlisted,
	}
}

// LoadConfig reads DEPOT_* environment variables on top of DefaultConfig.
func LoadConfig() (WorldConfig, error) {
	def := DefaultConfig()
	env := envConfig{
		ChunkSize:        def.ChunkSize,
		Workers:          def.Workers,
		MaxReadFences:    def.MaxReadFences,
		QueryCacheSize:   def.QueryCacheSize,
		LogLevel:         def.LogLevel.String(),
		WriteGroupPolicy: string(def.WriteGroupPolicy),
	}
	if err := config.FromEnv().To(&env); err != nil {
		return WorldConfig{}, eris.Wrap(err, "failed to load depot config from environment")
	}
	level, err := zerolog.ParseLevel(strings.ToLower(env.LogLevel))
	if err != nil {
		return WorldConfig{}, eris.Wrapf(err, "invalid DEPOT_LOG_LEVEL %q", env.LogLevel)
	}
	policy := WriteGroupPolicy(strings.ToLower(env.WriteGroupPolicy))
	if !policy.valid() {
		return WorldConfig{}, eris.Errorf("invalid DEPOT_WRITE_GROUP_POLICY %q", env.WriteGroupPolicy)
	}
	if env.ChunkSize < minChunkSize {
		return WorldConfig{}, eris.Errorf("DEPOT_CHUNK_SIZE must be at least %d, got %d", minChunkSize, env.ChunkSize)
	}
	return WorldConfig{
		ChunkSize:        env.ChunkSize,
		MaxChunkCapacity: env.MaxChunkCapacity,
		MaxChunks:        env.MaxChunks,
		Workers:          env.Workers,
		MaxReadFences:    env.MaxReadFences,
		QueryCacheSize:   env.QueryCacheSize,
		LogLevel:         level,
		WriteGroupPolicy: policy,
	}, nil
}

func (p WriteGroupPolicy) valid() bool {
	return p == WriteGroupExcludeUnlisted || p == WriteGroupReadWriteOnly
}

func (cfg WorldConfig) normalized() WorldConfig {
	def := DefaultConfig()
	if cfg.ChunkSize < minChunkSize {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxReadFences <= 0 {
		cfg.MaxReadFences = def.MaxReadFences
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = def.QueryCacheSize
	}
	if !cfg.WriteGroupPolicy.valid() {
		cfg.WriteGroupPolicy = def.WriteGroupPolicy
	}
	return cfg
}

// Option configures a World at construction.
type Option func(*World)

func WithConfig(cfg WorldConfig) Option {
	return func(w *World) {
		w.cfg = cfg
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

func WithChunkSize(size int) Option {
	return func(w *World) {
		w.cfg.ChunkSize = size
	}
}

func WithMaxChunkCapacity(rows int) Option {
	return func(w *World) {
		w.cfg.MaxChunkCapacity = rows
	}
}

func WithMaxChunks(n int) Option {
	return func(w *World) {
		w.cfg.MaxChunks = n
	}
}

func WithWorkers(n int) Option {
	return func(w *World) {
		w.cfg.Workers = n
	}
}

func WithWriteGroupPolicy(policy WriteGroupPolicy) Option {
	return func(w *World) {
		w.cfg.WriteGroupPolicy = policy
	}
}

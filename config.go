package uhash

import (
	"errors"

	"go.uber.org/zap"
)

const (
	// DefaultBuckets is the bucket count of a table built without
	// WithBuckets. A prime keeps hash % N well spread.
	DefaultBuckets = 2053
	// DefaultCapacity is the number of entry slots reserved per table.
	DefaultCapacity = 8192
	// DefaultTextCapacity is the size of a SymbolTable's string region.
	DefaultTextCapacity = 256 << 10

	defaultName = "uhash"
)

var (
	// ErrInvalidConfig is returned for options outside their valid range.
	ErrInvalidConfig = errors.New("uhash: invalid config")
	// ErrOutOfMemory is returned when the allocator can't reserve a table.
	ErrOutOfMemory = errors.New("uhash: out of memory")
	// ErrPointerPayload is returned for payload types holding Go pointers.
	// Table memory is never scanned by the garbage collector.
	ErrPointerPayload = errors.New("uhash: payload type contains pointers")
)

// Config holds the options of a table under construction.
type Config struct {
	buckets      int
	capacity     int
	textCapacity int
	allocator    Allocator
	logger       *zap.Logger
	name         string
}

func newConfig(options []func(*Config)) *Config {
	c := &Config{
		buckets:      DefaultBuckets,
		capacity:     DefaultCapacity,
		textCapacity: DefaultTextCapacity,
		name:         defaultName,
	}
	for _, o := range options {
		o(c)
	}
	if c.allocator == nil {
		c.allocator = DefaultAllocator()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// WithBuckets sets the fixed bucket count. Tables never resize, so pick a
// value around the expected live entry count.
func WithBuckets(n int) func(*Config) {
	return func(c *Config) {
		c.buckets = n
	}
}

// WithCapacity sets the number of entry slots reserved up front. Inserts
// beyond it fail instead of allocating.
func WithCapacity(n int) func(*Config) {
	return func(c *Config) {
		c.capacity = n
	}
}

// WithTextCapacity sets the byte size of a SymbolTable's string region.
func WithTextCapacity(n int) func(*Config) {
	return func(c *Config) {
		c.textCapacity = n
	}
}

// WithAllocator sets the allocator the table reserves its memory from.
func WithAllocator(a Allocator) func(*Config) {
	return func(c *Config) {
		c.allocator = a
	}
}

// WithLogger sets the logger for lifecycle events and fatal misuse.
// A nil logger keeps the default no-op logger.
func WithLogger(l *zap.Logger) func(*Config) {
	return func(c *Config) {
		c.logger = l
	}
}

// WithName labels the table in logs and stats.
func WithName(name string) func(*Config) {
	return func(c *Config) {
		c.name = name
	}
}

// fatal reports unrecoverable misuse. zap's default fatal hook exits the
// process; a hook that returns instead gets a panic.
//
//go:noinline
func fatal(logger *zap.Logger, msg string, fields ...zap.Field) {
	logger.Fatal(msg, fields...)
	panic(msg)
}

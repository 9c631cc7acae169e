package radix

import (
	"io"
	"log/slog"

	"github.com/aglyzov/go-cds/alloc"
)

// DefaultMaxKeyLen bounds key length unless WithMaxKeyLen says otherwise.
const DefaultMaxKeyLen = 1<<16 - 1

type config struct {
	compact   bool
	source    alloc.Source
	allocator alloc.Allocator
	log       *slog.Logger
	maxKeyLen int
}

// Option configures a Tree.
type Option func(*config)

// Compact makes every node its own heap allocation instead of carving
// nodes out of shared superblocks.
func Compact() Option {
	return func(c *config) {
		c.compact = true
	}
}

// WithSource builds the tree's buddy allocator over a shared superblock source.
func WithSource(src alloc.Source) Option {
	return func(c *config) {
		c.source = src
	}
}

// WithAllocator makes the tree allocate nodes from a.
func WithAllocator(a alloc.Allocator) Option {
	return func(c *config) {
		c.allocator = a
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMaxKeyLen sets the longest accepted key.
func WithMaxKeyLen(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxKeyLen = n
		}
	}
}

func defaultConfig() config {
	return config{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxKeyLen: DefaultMaxKeyLen,
	}
}

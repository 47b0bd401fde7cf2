package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Runtime.
type Option func(*config)

type config struct {
	logger           *zap.Logger
	memoryLimitPages uint32
	cacheDir         string
	enableThreads    bool
	callTimeout      time.Duration
	maxConcurrency   int64
	moduleDirs       []string
	reader           FileReader
	registerer       prometheus.Registerer
}

func defaultConfig() config {
	return config{
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMemoryLimitPages caps every instance's linear memory in 64KiB pages,
// regardless of what the module declares.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithCacheDir persists compiled machine code in dir so later processes
// skip compilation.
func WithCacheDir(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithThreads enables the threads proposal (shared memory, atomics).
func WithThreads(enabled bool) Option {
	return func(c *config) {
		c.enableThreads = enabled
	}
}

// WithCallTimeout sets the execution budget for every call. A call that
// exceeds it fails with ResourceLimitExceeded and terminates its instance.
// Zero means no budget.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		c.callTimeout = d
	}
}

// WithMaxConcurrency bounds how many async operations run at once.
// Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.maxConcurrency = int64(n)
	}
}

// WithModuleDirs confines CompileFromPath to the given directories. Paths
// are resolved inside each directory in order; traversal and symlinks
// cannot leave them.
func WithModuleDirs(dirs ...string) Option {
	return func(c *config) {
		c.moduleDirs = append(c.moduleDirs, dirs...)
	}
}

// WithFileReader delegates CompileFromPath reads to r. It takes precedence
// over WithModuleDirs.
func WithFileReader(r FileReader) Option {
	return func(c *config) {
		c.reader = r
	}
}

// WithMetrics registers runtime metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

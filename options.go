package fiber

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Default tuning values. The teacher never exposes tunables at all; the
// shape of this options block (validated, defaulted, functional-option
// constructors) is grounded on evan-idocoding-zkit/rt/tuning's typed-knob
// idiom, narrowed from "live atomic runtime knob" to "construction-time
// immutable option" since this spec's options are fixed per FiberManager
// (§6 of SPEC_FULL.md).
const (
	DefaultStackSize           = 256 * 1024
	DefaultMaxFibersPoolSize   = 256
	minStackSize               = 16 * 1024
)

// Options configures a FiberManager. Construct with NewOptions and one or
// more Option funcs; the zero value is never used directly.
type Options struct {
	// StackSize is the number of bytes allocated for each fiber's auxiliary
	// scratch buffer (§4.1/§4.2 of SPEC_FULL.md — the real goroutine stack
	// backing a fiber is managed by the Go runtime, not this buffer).
	StackSize uint32

	// DebugRecordStackUsed enables sentinel-fill-and-scan high-watermark
	// tracking of the scratch buffer.
	DebugRecordStackUsed bool

	// MaxFibersPoolSize bounds the number of idle, stack-bearing fibers kept
	// around for reuse. Excess fibers are destroyed on release.
	MaxFibersPoolSize uint32

	// GuardPages selects GuardedAllocator over HeapAllocator for the scratch
	// buffer, trading allocation cost for overflow-fault detection.
	GuardPages bool

	// StrictMode gates whether owning-thread misuse detected by
	// assertOwningGoroutine panics; with it off, the misuse is neither
	// reported nor logged. State-machine violations panic regardless of this
	// setting. Default true, matching the spec's "fatal in debug" stance (§7).
	StrictMode bool

	// ExceptionCallback receives task exceptions that have no finally
	// continuation. A nil callback makes such exceptions fatal, per §4.8/§7.
	ExceptionCallback func(err error, description string)

	// Logger receives structured diagnostic events. Defaults to a disabled
	// logger (zerolog.Nop()) so the engine is silent unless a caller opts in.
	Logger zerolog.Logger

	allocator StackAllocator
}

// Option mutates an Options block under construction.
type Option func(*Options)

// WithStackSize overrides DefaultStackSize.
func WithStackSize(n uint32) Option {
	return func(o *Options) { o.StackSize = n }
}

// WithDebugRecordStackUsed enables or disables the stack high-watermark gauge.
func WithDebugRecordStackUsed(b bool) Option {
	return func(o *Options) { o.DebugRecordStackUsed = b }
}

// WithMaxFibersPoolSize overrides DefaultMaxFibersPoolSize.
func WithMaxFibersPoolSize(n uint32) Option {
	return func(o *Options) { o.MaxFibersPoolSize = n }
}

// WithGuardPages selects the guard-paged stack allocator.
func WithGuardPages(b bool) Option {
	return func(o *Options) { o.GuardPages = b }
}

// WithStrictMode toggles fatal-on-invariant-violation behavior.
func WithStrictMode(b bool) Option {
	return func(o *Options) { o.StrictMode = b }
}

// WithExceptionCallback installs the default exception callback.
func WithExceptionCallback(cb func(err error, description string)) Option {
	return func(o *Options) { o.ExceptionCallback = cb }
}

// WithLogger installs a structured logger for engine diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// withAllocator is unexported: callers select allocation strategy via
// WithGuardPages; tests use it to inject a fake allocator.
func withAllocator(a StackAllocator) Option {
	return func(o *Options) { o.allocator = a }
}

// NewOptions builds a validated Options block, applying opts over the
// defaults.
func NewOptions(opts ...Option) (Options, error) {
	o := Options{
		StackSize:         DefaultStackSize,
		MaxFibersPoolSize: DefaultMaxFibersPoolSize,
		StrictMode:        true,
		Logger:            zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.StackSize < minStackSize {
		return Options{}, fmt.Errorf("fiber: stack size %d below minimum %d", o.StackSize, minStackSize)
	}
	if o.allocator == nil {
		if o.GuardPages {
			o.allocator = NewGuardedAllocator()
		} else {
			o.allocator = HeapAllocator{}
		}
	}
	return o, nil
}

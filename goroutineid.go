package fiber

import (
	"runtime"
	"strconv"
	"strings"
)

// currentGoroutineID parses the calling goroutine's id out of a short
// runtime.Stack dump. Go exposes no supported API for this; the trick
// (buffer just large enough for the "goroutine N [...]:" header line,
// parse the number) is the standard workaround, and its presence as a
// small standalone module in the pack
// (joeycumines-go-utilpkg/goroutineid — whose body was not retrieved, only
// its go.mod) confirms it's the idiomatic substitute the rest of this
// corpus reaches for when it needs something thread-local-shaped on top of
// goroutines. FiberManager uses it only to bind itself to its owning
// goroutine, to register fiber goroutines in the engine registry, and to
// assert owning-goroutine-only calls (§5); it is never on
// any hot path inside the scheduler loop itself.
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := string(buf[:n])
	s = strings.TrimPrefix(s, "goroutine ")
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		s = s[:idx]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Should be unreachable given the runtime's documented stack dump
		// format; fall back to a sentinel rather than panicking on a
		// diagnostics path.
		return -1
	}
	return id
}

package fiber

// Try is the result of running a task: either it completed cleanly, or it
// escaped with an exception. Because the engine's task functor is void()
// (§3 of the spec this module implements), Try carries no value payload —
// it is the Try<Unit> instantiation a C++ fiber library would use for a
// void task, narrowed to just the exception slot.
type Try struct {
	Err error
}

// HasException reports whether the task this Try describes escaped with
// an exception.
func (t Try) HasException() bool {
	return t.Err != nil
}

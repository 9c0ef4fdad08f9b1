package util

import "sync"

// ErrCollector listens for errors reported from parallel worker threads and
// buffers them for retrieval once a parallel job has completed. Used by the
// codegen and linking stages (spec.md §4.7, §6) for the handful of fatal,
// non-diagnostic errors (I/O failures, LLVM module verification failures)
// that sit outside the diag.Batch pipeline of recoverable compile
// diagnostics. Grounded on the teacher's perror, exported and renamed since
// multiple packages now need it rather than one.
type ErrCollector struct {
	listen chan error // Channel for receiving error messages from worker threads.
	stop   chan error // Messages sent on this channel cause the collector to stop listening.
	errors []error    // Buffer of error messages.
	sync.Mutex
}

// defaultBufferSize defines the fallback buffer size of the error array.
const defaultBufferSize = 16

// NewErrCollector returns a pointer to an ErrCollector with n pre-allocated
// slots for errors in the buffer.
func NewErrCollector(n int) *ErrCollector {
	if n < 1 {
		n = defaultBufferSize
	}
	ec := ErrCollector{
		listen: make(chan error),
		stop:   make(chan error),
		errors: make([]error, 0, n),
	}
	go ec.run()
	return &ec
}

// run starts listening for errors on the listen channel. Sending a message
// on the stop channel causes the error listener to stop.
func (ec *ErrCollector) run() {
	defer close(ec.listen)
	for {
		select {
		case err := <-ec.listen:
			ec.Lock()
			ec.errors = append(ec.errors, err)
			ec.Unlock()
		case <-ec.stop:
			return
		}
	}
}

// Flush empties the buffered error messages of the error listener. Flush
// must not be called after Stop.
func (ec *ErrCollector) Flush() {
	ec.Lock()
	defer ec.Unlock()
	ec.errors = make([]error, 0, cap(ec.errors))
}

// Len returns the number of buffered errors.
func (ec *ErrCollector) Len() int {
	ec.Lock()
	defer ec.Unlock()
	return len(ec.errors)
}

// Stop sends the stop signal to the error listener.
func (ec *ErrCollector) Stop() {
	defer close(ec.stop)
	ec.stop <- nil
}

// Append sends the error message err to the error listener. nil errors are
// ignored.
func (ec *ErrCollector) Append(err error) {
	if err != nil {
		ec.listen <- err
	}
}

// Errors returns a buffered channel with all the reported errors since the
// last call to Flush, effectively creating an iterator.
func (ec *ErrCollector) Errors() <-chan error {
	ec.Lock()
	defer ec.Unlock()
	c := make(chan error, len(ec.errors))
	for _, e1 := range ec.errors {
		c <- e1
	}
	return c
}

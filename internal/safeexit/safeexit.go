// Package safeexit runs registered shutdown funcs when the process is
// interrupted.
package safeexit

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SafeExit shutdown hook registry
type SafeExit struct {
	funcs []func()
	mu    sync.Mutex
	once  sync.Once
	sigs  chan os.Signal
}

// New starts listening for SIGHUP, SIGINT, SIGTERM and SIGQUIT.
func New() *SafeExit {
	s := &SafeExit{sigs: make(chan os.Signal, 1)}
	signal.Notify(s.sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go s.listen()
	return s
}

// Register adds f to the funcs run on interruption.
func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Exit runs the registered funcs once.
func (s *SafeExit) Exit() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, f := range s.funcs {
			f()
		}
	})
}

// Stop stops listening for signals.
func (s *SafeExit) Stop() {
	signal.Stop(s.sigs)
	close(s.sigs)
}

func (s *SafeExit) listen() {
	for range s.sigs {
		s.Exit()
	}
}

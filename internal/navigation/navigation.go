package navigation

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrNoHistory = errors.New("nothing to go back to")

// Router is an in-memory navigation stack. Screens push and go back; the
// gatekeeper only ever replaces the top entry.
type Router struct {
	log *slog.Logger

	mu       sync.Mutex
	stack    []Location
	watchers map[int]chan struct{}
	nextID   int
}

func NewRouter(initial string, log *slog.Logger) (*Router, error) {
	loc, err := ParseLocation(initial)
	if err != nil {
		return nil, err
	}
	return &Router{
		log:      log,
		stack:    []Location{loc},
		watchers: make(map[int]chan struct{}),
	}, nil
}

func (r *Router) Location() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stack[len(r.stack)-1]
}

func (r *Router) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

func (r *Router) Push(path string) error {
	loc, err := ParseLocation(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stack = append(r.stack, loc)
	r.log.Debug("navigation push", slog.String("path", loc.Path()))
	r.notify()
	return nil
}

// Replace swaps the current screen. Replacing a screen with itself does
// nothing and wakes nobody.
func (r *Router) Replace(path string) error {
	loc, err := ParseLocation(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	top := len(r.stack) - 1
	if r.stack[top].Equal(loc) {
		return nil
	}

	r.stack[top] = loc
	r.log.Debug("navigation replace", slog.String("path", loc.Path()))
	r.notify()
	return nil
}

func (r *Router) Back() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.stack) < 2 {
		return ErrNoHistory
	}
	r.stack = r.stack[:len(r.stack)-1]
	r.notify()
	return nil
}

func (r *Router) Watch() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.watchers, id)
			close(ch)
		})
	}
}

func (r *Router) notify() {
	for _, ch := range r.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

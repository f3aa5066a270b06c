// Package reconciler keeps one screen's copy of a collection in step with
// the server. A list fetches once when mounted and afterwards changes only
// after the server confirms an edit or delete.
package reconciler

import (
	"context"
	"net/http"
	"sync"

	"watt/watt-client/pkg/remote"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNotReady  = errors.New("list is not ready")
	ErrUnmounted = errors.New("list was unmounted")
)

type State int

const (
	Loading State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ItemMode is the local-only UI state of one row.
type ItemMode int

const (
	Viewing ItemMode = iota
	Editing
	ConfirmingDelete
)

// Source is the remote side of a list.
type Source[T any] interface {
	List(ctx context.Context) ([]T, error)
	// Update returns the confirmed record, or nil when the server did not
	// echo one back.
	Update(ctx context.Context, item T) (*T, error)
	Delete(ctx context.Context, id int64) error
}

type List[T any] struct {
	name string
	src  Source[T]
	key  func(T) int64

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu    sync.Mutex
	state State
	items []T
	err   error
	modes map[int64]ItemMode
}

// New builds a list whose requests live at most as long as parent. name
// only shows up in logs.
func New[T any](parent context.Context, name string, src Source[T], key func(T) int64) *List[T] {
	ctx, cancel := context.WithCancel(parent)
	return &List[T]{
		name:   name,
		src:    src,
		key:    key,
		ctx:    ctx,
		cancel: cancel,
		state:  Loading,
		modes:  make(map[int64]ItemMode),
	}
}

// Mount issues the initial fetch. Repeated calls do not fetch again; they
// return the outcome of the first one. A list whose context is done
// returns ErrUnmounted and stays Loading.
func (l *List[T]) Mount() error {
	l.once.Do(l.fetch)
	return l.outcome()
}

// Reload fetches again on an explicit user request, for instance after a
// failure.
func (l *List[T]) Reload() error {
	l.once.Do(func() {})
	if l.ctx.Err() != nil {
		return ErrUnmounted
	}
	l.mu.Lock()
	l.state = Loading
	l.mu.Unlock()
	l.fetch()
	return l.outcome()
}

func (l *List[T]) outcome() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Loading && l.ctx.Err() != nil {
		return ErrUnmounted
	}
	return l.err
}

func (l *List[T]) fetch() {
	if l.ctx.Err() != nil {
		return
	}
	items, err := l.src.List(l.ctx)
	if l.ctx.Err() != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = Failed
		l.err = err
		log.WithFields(log.Fields{
			"list": l.name,
			"err":  err,
		}).Warn("fetch failed")
		return
	}
	l.state = Ready
	l.err = nil
	l.items = items
	l.modes = make(map[int64]ItemMode)
}

// Edit sends item to the server and, once confirmed, replaces the row with
// the same key.
func (l *List[T]) Edit(item T) error {
	if err := l.ready(); err != nil {
		return err
	}
	id := l.key(item)
	updated, err := l.src.Update(l.ctx, item)
	if l.ctx.Err() != nil {
		return ErrUnmounted
	}
	if err != nil {
		l.logFailure("edit", id, err)
		return err
	}
	if updated != nil {
		item = *updated
	}

	l.mu.Lock()
	for i := range l.items {
		if l.key(l.items[i]) == id {
			l.items[i] = item
			break
		}
	}
	delete(l.modes, id)
	l.mu.Unlock()
	return nil
}

// Delete removes id on the server and then from the list. A 404 drops the
// row too, since the server no longer has it, and is still returned.
func (l *List[T]) Delete(id int64) error {
	if err := l.ready(); err != nil {
		return err
	}
	err := l.src.Delete(l.ctx, id)
	if l.ctx.Err() != nil {
		return ErrUnmounted
	}
	if err != nil {
		l.logFailure("delete", id, err)
		if remote.StatusOf(err) != http.StatusNotFound {
			return err
		}
	}

	l.mu.Lock()
	kept := l.items[:0:0]
	for _, it := range l.items {
		if l.key(it) != id {
			kept = append(kept, it)
		}
	}
	l.items = kept
	delete(l.modes, id)
	l.mu.Unlock()
	return err
}

func (l *List[T]) BeginEdit(id int64)   { l.setMode(id, Editing) }
func (l *List[T]) BeginDelete(id int64) { l.setMode(id, ConfirmingDelete) }
func (l *List[T]) Cancel(id int64)      { l.setMode(id, Viewing) }

func (l *List[T]) Mode(id int64) ItemMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.modes[id]
}

// Unmount cancels in-flight requests. Results arriving afterwards are
// dropped.
func (l *List[T]) Unmount() {
	l.cancel()
}

func (l *List[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *List[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Err is the fetch failure while the list is Failed.
func (l *List[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Message is the user-facing text for the current failure, if any.
func (l *List[T]) Message() string {
	return remote.UserMessage(l.Err())
}

func (l *List[T]) ready() error {
	if l.ctx.Err() != nil {
		return ErrUnmounted
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Ready {
		return ErrNotReady
	}
	return nil
}

func (l *List[T]) setMode(id int64, m ItemMode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m == Viewing {
		delete(l.modes, id)
		return
	}
	l.modes[id] = m
}

func (l *List[T]) logFailure(action string, id int64, err error) {
	log.WithFields(log.Fields{
		"list":   l.name,
		"action": action,
		"id":     id,
		"err":    err,
	}).Warn("mutation failed")
}

// Package feedback owns the canonical in-memory feedback list shared by
// every screen. The list only changes after the server confirms a call;
// each confirmed mutation rewrites the local snapshot.
package feedback

import (
	"context"
	"net/http"
	"strings"
	"sync"

	watt "watt/watt-client"
	"watt/watt-client/pkg/remote"
	"watt/watt-client/pkg/wire"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrEmptyMessage = errors.New("feedback message must not be empty")

// Remote is the slice of the remote repository the store needs.
type Remote interface {
	ListFeedback(ctx context.Context) ([]watt.Feedback, error)
	CreateFeedback(ctx context.Context, author, message string) (watt.Feedback, error)
	UpdateFeedback(ctx context.Context, id int64, message string) (*watt.Feedback, error)
	DeleteFeedback(ctx context.Context, id int64) error
}

// Snapshotter persists the list locally. *cache.Cache satisfies it.
type Snapshotter interface {
	Load(ctx context.Context) ([]watt.Feedback, bool, error)
	Save(ctx context.Context, list []watt.Feedback) error
}

type Store struct {
	remote Remote
	cache  Snapshotter

	mu       sync.Mutex
	items    []watt.Feedback
	loading  int
	synced   bool
	saveErr  error
	watchers map[int]func([]watt.Feedback)
	nextW    int
}

func NewStore(remote Remote, cache Snapshotter) *Store {
	return &Store{
		remote:   remote,
		cache:    cache,
		items:    []watt.Feedback{},
		watchers: make(map[int]func([]watt.Feedback)),
	}
}

// Restore seeds the list from the snapshot. It is a no-op once a remote
// fetch has succeeded, and its failures are only logged.
func (s *Store) Restore(ctx context.Context) bool {
	list, ok, err := s.cache.Load(ctx)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("feedback snapshot unreadable")
		return false
	}
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.synced {
		s.mu.Unlock()
		return false
	}
	s.items = wire.DedupeFeedback(list)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return true
}

// Load replaces the list with the server's. The snapshot is left alone.
func (s *Store) Load(ctx context.Context) error {
	s.setLoading(1)
	defer s.setLoading(-1)

	list, err := s.remote.ListFeedback(ctx)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("loading feedback failed")
		return err
	}

	s.mu.Lock()
	s.items = list
	s.synced = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Add creates an entry and appends the server's record.
func (s *Store) Add(ctx context.Context, author, message string) (watt.Feedback, error) {
	if strings.TrimSpace(message) == "" {
		return watt.Feedback{}, ErrEmptyMessage
	}
	created, err := s.remote.CreateFeedback(ctx, author, message)
	if err != nil {
		return watt.Feedback{}, err
	}

	s.mu.Lock()
	// the server is the source of ids; drop any stale copy first
	s.items = append(removeID(s.items, created.ID), created)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.notify(snap)
	return created, nil
}

// Edit changes the message of id. When id is not in the list the list is
// left as is; nothing gets inserted.
func (s *Store) Edit(ctx context.Context, id int64, message string) (watt.Feedback, error) {
	if strings.TrimSpace(message) == "" {
		return watt.Feedback{}, ErrEmptyMessage
	}
	updated, err := s.remote.UpdateFeedback(ctx, id, message)
	if err != nil {
		return watt.Feedback{}, err
	}

	s.mu.Lock()
	var result watt.Feedback
	found := false
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if updated != nil {
			s.items[i] = *updated
		} else {
			s.items[i].Message = message
		}
		result = s.items[i]
		found = true
		break
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if !found {
		if updated != nil {
			result = *updated
		} else {
			result = watt.Feedback{ID: id, Message: message}
		}
		return result, nil
	}

	s.persist(ctx, snap)
	s.notify(snap)
	return result, nil
}

// Remove deletes id on the server and then drops it locally. A 404 means
// the server no longer has it either, so it is dropped as well and the
// error is still returned.
func (s *Store) Remove(ctx context.Context, id int64) error {
	err := s.remote.DeleteFeedback(ctx, id)
	if err != nil && remote.StatusOf(err) != http.StatusNotFound {
		return err
	}

	s.mu.Lock()
	s.items = removeID(s.items, id)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.notify(snap)
	return err
}

// Items returns a copy of the current list.
func (s *Store) Items() []watt.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// LastSaveError is the result of the most recent snapshot write.
func (s *Store) LastSaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveErr
}

// Reset empties the in-memory list, used on logout and session expiry.
// The snapshot on disk is not touched.
func (s *Store) Reset() {
	s.mu.Lock()
	s.items = []watt.Feedback{}
	s.synced = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Watch registers fn to receive the list after every change. The returned
// func unregisters it.
func (s *Store) Watch(fn func([]watt.Feedback)) func() {
	s.mu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) persist(ctx context.Context, snap []watt.Feedback) {
	err := s.cache.Save(ctx, snap)
	if err != nil {
		log.WithFields(log.Fields{
			"err":   err,
			"count": len(snap),
		}).Error("writing feedback snapshot failed")
	}
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

func (s *Store) notify(snap []watt.Feedback) {
	s.mu.Lock()
	fns := make([]func([]watt.Feedback), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) setLoading(delta int) {
	s.mu.Lock()
	s.loading += delta
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() []watt.Feedback {
	out := make([]watt.Feedback, len(s.items))
	copy(out, s.items)
	return out
}

func removeID(list []watt.Feedback, id int64) []watt.Feedback {
	out := list[:0:0]
	for _, f := range list {
		if f.ID != id {
			out = append(out, f)
		}
	}
	return out
}

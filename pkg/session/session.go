// Package session holds the bearer token and user id of the signed in
// user. Both are read from durable storage on every call so that a logout
// in one place is seen by every later request.
package session

import (
	"context"

	"watt/watt-client/pkg/storage"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoToken  = errors.New("no session token")
	ErrNoUserID = errors.New("no session user id")
)

type Store struct {
	kv storage.KV
}

func New(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Token returns the current token or ErrNoToken. Storage failures are
// returned wrapped; callers treat both as "not authenticated".
func (s *Store) Token(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeyToken, ErrNoToken)
}

func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	return errors.Wrap(s.kv.Set(ctx, storage.KeyToken, token), "store token")
}

func (s *Store) ClearToken(ctx context.Context) error {
	return errors.Wrap(s.kv.Delete(ctx, storage.KeyToken), "clear token")
}

func (s *Store) UserID(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeyUserID, ErrNoUserID)
}

func (s *Store) SetUserID(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoUserID
	}
	return errors.Wrap(s.kv.Set(ctx, storage.KeyUserID, id), "store user id")
}

func (s *Store) ClearUserID(ctx context.Context) error {
	return errors.Wrap(s.kv.Delete(ctx, storage.KeyUserID), "clear user id")
}

// Clear drops token and user id. Both deletes are attempted.
func (s *Store) Clear(ctx context.Context) error {
	errToken := s.ClearToken(ctx)
	errUser := s.ClearUserID(ctx)
	if errToken != nil {
		return errToken
	}
	return errUser
}

func (s *Store) get(ctx context.Context, key string, missing error) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if err == storage.ErrNotFound || (err == nil && v == "") {
		return "", missing
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
			"key": key,
		}).Warn("session read failed")
		return "", errors.Wrapf(missing, "read %s: %v", key, err)
	}
	return v, nil
}

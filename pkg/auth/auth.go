// Package auth signs the user in and out. Credentials are validated before
// any request is made.
package auth

import (
	"context"
	"strings"
	"time"

	watt "watt/watt-client"
	"watt/watt-client/pkg/session"
	"watt/watt-client/pkg/validate"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Remote interface {
	Login(ctx context.Context, creds watt.Credentials) (watt.LoginResult, error)
	Register(ctx context.Context, creds watt.Credentials) error
}

type Service struct {
	remote   Remote
	session  *session.Store
	onLogout []func()
}

func NewService(remote Remote, sess *session.Store) *Service {
	return &Service{remote: remote, session: sess}
}

// OnLogout registers fn to run after the session is cleared, whether by
// Logout or by Expire.
func (s *Service) OnLogout(fn func()) {
	s.onLogout = append(s.onLogout, fn)
}

// Login validates creds, exchanges them for a token and stores token and
// user id.
func (s *Service) Login(ctx context.Context, creds watt.Credentials) (watt.LoginResult, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := validate.Struct(creds); err != nil {
		return watt.LoginResult{}, err
	}

	res, err := s.remote.Login(ctx, creds)
	if err != nil {
		log.WithFields(log.Fields{
			"username": creds.Username,
			"err":      err,
		}).Warn("login failed")
		return watt.LoginResult{}, err
	}

	if err := s.session.SetToken(ctx, res.Token); err != nil {
		return watt.LoginResult{}, errors.Wrap(err, "login")
	}
	if res.UserID != "" {
		if err := s.session.SetUserID(ctx, res.UserID); err != nil {
			return watt.LoginResult{}, errors.Wrap(err, "login")
		}
	}

	log.WithFields(log.Fields{
		"username": creds.Username,
		"user_id":  res.UserID,
	}).Info("signed in")
	return res, nil
}

func (s *Service) Register(ctx context.Context, creds watt.Credentials) error {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := validate.Struct(creds); err != nil {
		return err
	}
	return s.remote.Register(ctx, creds)
}

// Logout forgets the session and resets in-memory state.
func (s *Service) Logout(ctx context.Context) error {
	err := s.session.Clear(ctx)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("clearing session failed")
	}
	for _, fn := range s.onLogout {
		fn()
	}
	return err
}

// expireTimeout bounds the sign-out that Expire runs after the triggering
// request is gone.
const expireTimeout = 5 * time.Second

// Expire is the session-expired hook: the server rejected the token, so
// the user has to sign in again. The sign-out does not inherit ctx's
// cancellation, only its values.
func (s *Service) Expire(ctx context.Context) {
	log.Warn("session expired, signing out")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), expireTimeout)
	defer cancel()
	if err := s.Logout(ctx); err != nil {
		log.WithFields(log.Fields{"err": err}).Error("sign-out after expiry failed")
	}
}

// SignedIn reports whether a token is stored.
func (s *Service) SignedIn(ctx context.Context) bool {
	_, err := s.session.Token(ctx)
	return err == nil
}

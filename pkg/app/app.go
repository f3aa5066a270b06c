// Package app assembles the client: storage, session, remote client,
// feedback store and auth, wired so that a rejected token signs the user
// out everywhere at once.
package app

import (
	"context"

	watt "watt/watt-client"
	"watt/watt-client/pkg/auth"
	"watt/watt-client/pkg/cache"
	"watt/watt-client/pkg/config"
	"watt/watt-client/pkg/feedback"
	"watt/watt-client/pkg/reconciler"
	"watt/watt-client/pkg/remote"
	"watt/watt-client/pkg/session"
	"watt/watt-client/pkg/storage"
	"watt/watt-client/pkg/validate"

	log "github.com/sirupsen/logrus"
)

type App struct {
	Config   *config.Config
	Session  *session.Store
	Remote   *remote.Client
	Feedback *feedback.Store
	Auth     *auth.Service

	db      *storage.Service
	expired chan struct{}
}

// New opens the sqlite store named in cfg and builds the app on it.
func New(cfg *config.Config, opts ...remote.Option) (*App, error) {
	db, err := storage.NewService(cfg)
	if err != nil {
		return nil, err
	}
	a := NewWithKV(cfg, db, opts...)
	a.db = db
	return a, nil
}

// NewWithKV builds the app on any key-value store.
func NewWithKV(cfg *config.Config, kv storage.KV, opts ...remote.Option) *App {
	a := &App{
		Config:  cfg,
		Session: session.New(kv),
		expired: make(chan struct{}, 1),
	}

	opts = append(opts, remote.WithSessionExpiredHandler(a.sessionExpired))
	a.Remote = remote.New(cfg.Client, a.Session, opts...)
	a.Feedback = feedback.NewStore(a.Remote, cache.New(kv))
	a.Auth = auth.NewService(a.Remote, a.Session)
	a.Auth.OnLogout(a.Feedback.Reset)
	return a
}

// Start seeds the feedback store from the local snapshot so something can
// be shown before the first fetch completes.
func (a *App) Start(ctx context.Context) {
	if a.Feedback.Restore(ctx) {
		log.WithFields(log.Fields{
			"count": len(a.Feedback.Items()),
		}).Debug("restored feedback snapshot")
	}
}

func (a *App) sessionExpired(ctx context.Context) {
	a.Auth.Expire(ctx)
	select {
	case a.expired <- struct{}{}:
	default:
	}
}

// Expired receives a value each time the server rejects the stored token.
// The user has to sign in again.
func (a *App) Expired() <-chan struct{} {
	return a.expired
}

// RegisterAppliance validates and creates an appliance.
func (a *App) RegisterAppliance(ctx context.Context, in watt.Appliance) (watt.Appliance, error) {
	if err := validate.Struct(in); err != nil {
		return watt.Appliance{}, err
	}
	return a.Remote.CreateAppliance(ctx, in)
}

func (a *App) FeedbackList(ctx context.Context) *reconciler.List[watt.Feedback] {
	return reconciler.NewFeedbackList(ctx, a.Feedback)
}

func (a *App) ApplianceList(ctx context.Context) *reconciler.List[watt.Appliance] {
	return reconciler.NewApplianceList(ctx, a.Remote)
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Package storage is the client's durable key/value store. Values are
// overwritten wholesale on every write.
package storage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"watt/watt-client/pkg/config"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Fixed keys used by the client.
const (
	KeyToken     = "token"
	KeyUserID    = "usuario_id"
	KeyFeedbacks = "feedbacks"
)

var ErrNotFound = errors.New("key not found")

// KV is the durable store contract shared by the session and the cache.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type entry struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

// Service is the sqlite backed KV.
type Service struct {
	conn *sqlx.DB

	stmtGet    *sqlx.NamedStmt
	stmtSet    *sqlx.NamedStmt
	stmtDelete *sqlx.NamedStmt
}

func NewService(cfg *config.Config) (*Service, error) {
	if cfg == nil || cfg.Storage == nil || cfg.Storage.Path == "" {
		log.WithFields(log.Fields{
			"config": cfg,
		}).Error("invalid storage config")
		return nil, config.ErrInvalidConfig
	}
	return Open(cfg.Storage.Path)
}

// Open opens (creating when needed) the store at path.
func Open(path string) (*Service, error) {
	conn, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open storage %s", path)
	}
	// one writer; sqlite serializes anyway
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)
`); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "create kv table")
	}

	srv := &Service{conn: conn}

	srv.stmtGet, err = srv.conn.PrepareNamed(`
	SELECT
		key,
		value,
		updated_at
	FROM
		kv
	WHERE key = :key
`)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Failed stmtGet")
		conn.Close()
		return nil, err
	}

	srv.stmtSet, err = srv.conn.PrepareNamed(`
	INSERT INTO kv (
		key,
		value,
		updated_at
		) VALUES (
		:key,
		:value,
		:updated_at
	)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
`)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Failed stmtSet")
		conn.Close()
		return nil, err
	}

	srv.stmtDelete, err = srv.conn.PrepareNamed(`
	DELETE FROM kv
	WHERE key = :key
`)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Failed stmtDelete")
		conn.Close()
		return nil, err
	}

	return srv, nil
}

func (s *Service) Get(ctx context.Context, key string) (string, error) {
	var e entry
	err := s.stmtGet.GetContext(ctx, &e, entry{Key: key})
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
			"key": key,
		}).Error("Failed to Get kv")
		return "", err
	}
	return e.Value, nil
}

func (s *Service) Set(ctx context.Context, key, value string) error {
	_, err := s.stmtSet.ExecContext(ctx, entry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC().Unix(),
	})
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
			"key": key,
		}).Error("Failed to Exec Set kv")
		return err
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	_, err := s.stmtDelete.ExecContext(ctx, entry{Key: key})
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
			"key": key,
		}).Error("Failed to Exec Delete kv")
		return err
	}
	return nil
}

func (s *Service) Close() error {
	return s.conn.Close()
}

// Memory is a process-local KV, used when nothing should touch disk.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

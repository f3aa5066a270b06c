package postgres

import (
	"context"
	"database/sql"
	"fmt"

	watt "watt/watt-client"
	"watt/watt-client/pkg/config"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

// Service is the Postgres-backed registry used by the reference server.
type Service struct {
	conn *sqlx.DB

	stmtListFeedback   *sqlx.NamedStmt
	stmtInsertFeedback *sqlx.NamedStmt
	stmtUpdateFeedback *sqlx.NamedStmt
	stmtDeleteFeedback *sqlx.NamedStmt

	stmtListAppliances  *sqlx.NamedStmt
	stmtInsertAppliance *sqlx.NamedStmt
	stmtUpdateAppliance *sqlx.NamedStmt
	stmtDeleteAppliance *sqlx.NamedStmt

	stmtNewUser *sqlx.NamedStmt
	stmtGetUser *sqlx.NamedStmt
}

func NewService(cfg *config.Config) (*Service, error) {
	if cfg == nil || cfg.Databases == nil || cfg.Databases.Registry == nil {
		log.WithFields(log.Fields{
			"config": cfg,
		}).Error("invalid config")
		return nil, config.ErrInvalidConfig
	}

	db := cfg.Databases.Registry
	conn, err := sqlx.Connect("postgres", fmt.Sprintf("postgres://%v:%v@%v:%d/%v?sslmode=disable",
		db.Username,
		db.Password,
		db.Hostname,
		db.Port,
		db.Database))
	if err != nil {
		return nil, errors.Wrap(err, "connect registry database")
	}

	return New(conn)
}

// New prepares every statement on an open connection.
func New(conn *sqlx.DB) (*Service, error) {
	srv := &Service{conn: conn}

	stmts := []struct {
		name  string
		dst   **sqlx.NamedStmt
		query string
	}{
		{"stmtListFeedback", &srv.stmtListFeedback, `
	SELECT
		id,
		author,
		message,
		created_at
	FROM
		feedback
	ORDER BY id
`},
		{"stmtInsertFeedback", &srv.stmtInsertFeedback, `
	INSERT INTO feedback (
		user_id,
		author,
		message
		) VALUES (
		:user_id,
		:author,
		:message
	)
	RETURNING id, author, message, created_at
`},
		{"stmtUpdateFeedback", &srv.stmtUpdateFeedback, `
	UPDATE feedback
	SET message = :message
	WHERE id = :id
	RETURNING id, author, message, created_at
`},
		{"stmtDeleteFeedback", &srv.stmtDeleteFeedback, `
	DELETE FROM feedback
	WHERE id = :id
`},
		{"stmtListAppliances", &srv.stmtListAppliances, `
	SELECT
		id,
		name,
		power_watts,
		daily_usage_hours,
		registered_at
	FROM
		appliances
	ORDER BY id
`},
		{"stmtInsertAppliance", &srv.stmtInsertAppliance, `
	INSERT INTO appliances (
		name,
		power_watts,
		daily_usage_hours
		) VALUES (
		:name,
		:power_watts,
		:daily_usage_hours
	)
	RETURNING id, name, power_watts, daily_usage_hours, registered_at
`},
		{"stmtUpdateAppliance", &srv.stmtUpdateAppliance, `
	UPDATE appliances
	SET
	 name = :name,
	 power_watts = :power_watts,
	 daily_usage_hours = :daily_usage_hours
	WHERE id = :id
	RETURNING id, name, power_watts, daily_usage_hours, registered_at
`},
		{"stmtDeleteAppliance", &srv.stmtDeleteAppliance, `
	DELETE FROM appliances
	WHERE id = :id
`},
		{"stmtNewUser", &srv.stmtNewUser, `
	INSERT INTO users (
		username,
		hash
		) VALUES (
		:username,
		:hash
	)
	RETURNING id
`},
		{"stmtGetUser", &srv.stmtGetUser, `
	SELECT
		id,
		username,
		hash
	FROM
		users
	WHERE username = :username
`},
	}

	for _, st := range stmts {
		prepared, err := conn.PrepareNamed(st.query)
		if err != nil {
			log.WithFields(log.Fields{"err": err}).Error("Failed " + st.name)
			return nil, errors.Wrap(err, st.name)
		}
		*st.dst = prepared
	}

	return srv, nil
}

func (s *Service) Close() error {
	return s.conn.Close()
}

func (s *Service) ListFeedback(ctx context.Context) ([]watt.Feedback, error) {
	feedback := []watt.Feedback{}
	err := s.stmtListFeedback.SelectContext(ctx, &feedback, struct{}{})
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Select ListFeedback")
		return nil, err
	}
	return feedback, nil
}

// InsertFeedback stores f on behalf of userID and returns the stored row.
func (s *Service) InsertFeedback(ctx context.Context, userID int64, f watt.Feedback) (watt.Feedback, error) {
	query := struct {
		UserID  int64  `db:"user_id"`
		Author  string `db:"author"`
		Message string `db:"message"`
	}{
		UserID:  userID,
		Author:  f.Author,
		Message: f.Message,
	}
	var out watt.Feedback
	if err := s.stmtInsertFeedback.GetContext(ctx, &out, query); err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Get InsertFeedback")
		return watt.Feedback{}, err
	}
	return out, nil
}

func (s *Service) UpdateFeedback(ctx context.Context, id int64, message string) (watt.Feedback, error) {
	query := struct {
		ID      int64  `db:"id"`
		Message string `db:"message"`
	}{
		ID:      id,
		Message: message,
	}
	var out watt.Feedback
	err := s.stmtUpdateFeedback.GetContext(ctx, &out, query)
	if err == sql.ErrNoRows {
		return watt.Feedback{}, watt.ErrNotFound
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Get UpdateFeedback")
		return watt.Feedback{}, err
	}
	return out, nil
}

func (s *Service) DeleteFeedback(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, s.stmtDeleteFeedback, "DeleteFeedback", id)
}

func (s *Service) ListAppliances(ctx context.Context) ([]watt.Appliance, error) {
	appliances := []watt.Appliance{}
	err := s.stmtListAppliances.SelectContext(ctx, &appliances, struct{}{})
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Select ListAppliances")
		return nil, err
	}
	return appliances, nil
}

func (s *Service) InsertAppliance(ctx context.Context, a watt.Appliance) (watt.Appliance, error) {
	var out watt.Appliance
	if err := s.stmtInsertAppliance.GetContext(ctx, &out, a); err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Get InsertAppliance")
		return watt.Appliance{}, err
	}
	return out, nil
}

func (s *Service) UpdateAppliance(ctx context.Context, a watt.Appliance) (watt.Appliance, error) {
	var out watt.Appliance
	err := s.stmtUpdateAppliance.GetContext(ctx, &out, a)
	if err == sql.ErrNoRows {
		return watt.Appliance{}, watt.ErrNotFound
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Get UpdateAppliance")
		return watt.Appliance{}, err
	}
	return out, nil
}

func (s *Service) DeleteAppliance(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, s.stmtDeleteAppliance, "DeleteAppliance", id)
}

// NewUser inserts user and returns it with its assigned id. A taken
// username yields watt.ErrConflict.
func (s *Service) NewUser(ctx context.Context, user watt.User) (watt.User, error) {
	err := s.stmtNewUser.GetContext(ctx, &user.ID, user)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return watt.User{}, watt.ErrConflict
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Get NewUser")
		return watt.User{}, err
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, username string) (watt.User, error) {
	query := struct {
		Username string `db:"username"`
	}{
		Username: username,
	}
	var user watt.User
	err := s.stmtGetUser.GetContext(ctx, &user, query)
	if err == sql.ErrNoRows {
		return watt.User{}, watt.ErrNotFound
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Get GetUser")
		return watt.User{}, err
	}
	return user, nil
}

func (s *Service) deleteByID(ctx context.Context, stmt *sqlx.NamedStmt, name string, id int64) error {
	query := struct {
		ID int64 `db:"id"`
	}{
		ID: id,
	}
	res, err := stmt.ExecContext(ctx, query)
	if err != nil {
		log.WithFields(log.Fields{
			"err": err,
		}).Error("Failed to Exec " + name)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return watt.ErrNotFound
	}
	return nil
}

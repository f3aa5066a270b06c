package rest

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	watt "watt/watt-client"
	"watt/watt-client/pkg/config"
	"watt/watt-client/pkg/postgres"
	"watt/watt-client/pkg/security"
	"watt/watt-client/pkg/validate"
	"watt/watt-client/pkg/wire"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Repository is the registry backing the server. *postgres.Service and
// *Memory implement it.
type Repository interface {
	ListFeedback(ctx context.Context) ([]watt.Feedback, error)
	InsertFeedback(ctx context.Context, userID int64, f watt.Feedback) (watt.Feedback, error)
	UpdateFeedback(ctx context.Context, id int64, message string) (watt.Feedback, error)
	DeleteFeedback(ctx context.Context, id int64) error

	ListAppliances(ctx context.Context) ([]watt.Appliance, error)
	InsertAppliance(ctx context.Context, a watt.Appliance) (watt.Appliance, error)
	UpdateAppliance(ctx context.Context, a watt.Appliance) (watt.Appliance, error)
	DeleteAppliance(ctx context.Context, id int64) error

	NewUser(ctx context.Context, user watt.User) (watt.User, error)
	GetUser(ctx context.Context, username string) (watt.User, error)
}

var (
	_ Repository = (*postgres.Service)(nil)
	_ Repository = (*Memory)(nil)
)

const internalError = "internal server error"

type Server struct {
	config   *config.Config
	engine   *gin.Engine
	database Repository
}

func NewServer(cfg *config.Config, e *gin.Engine, repo Repository) *Server {
	return &Server{
		config:   cfg,
		engine:   e,
		database: repo,
	}
}

// Initialise registers every route on the engine.
func (s *Server) Initialise() {
	s.engine.Use(gin.Recovery(), requestLogger(), instrument())

	s.engine.GET("/health", s.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	users := s.engine.Group(s.config.Client.UsersPath)
	users.POST("/register", s.Register)
	users.POST("/login", s.Login)

	auth := security.Authenticate(s.config.Security)

	feedback := s.engine.Group(s.config.Client.FeedbackPath, auth)
	feedback.GET("", s.ListFeedback)
	feedback.POST("", s.InsertFeedback)
	feedback.PUT("/:id", s.UpdateFeedback)
	feedback.DELETE("/:id", s.DeleteFeedback)

	appliances := s.engine.Group(s.config.Client.AppliancesPath, auth)
	appliances.GET("", s.ListAppliances)
	appliances.POST("", s.InsertAppliance)
	appliances.PUT("/:id", s.UpdateAppliance)
	appliances.DELETE("/:id", s.DeleteAppliance)
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Register(c *gin.Context) {
	var body wire.Login
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	creds := watt.Credentials{Username: strings.TrimSpace(body.Username), Password: body.Password}
	if err := validate.Struct(creds); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := security.HashPassword(creds.Password)
	if err != nil {
		s.failed(c, "register", err)
		return
	}
	user, err := s.database.NewUser(c.Request.Context(), watt.User{Username: creds.Username, Hash: hash})
	if err == watt.ErrConflict {
		abort(c, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		s.failed(c, "register", err)
		return
	}

	log.WithFields(log.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("user registered")
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username})
}

func (s *Server) Login(c *gin.Context) {
	var body wire.Login
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	user, err := s.database.GetUser(c.Request.Context(), strings.TrimSpace(body.Username))
	if err != nil && err != watt.ErrNotFound {
		s.failed(c, "login", err)
		return
	}
	if err == watt.ErrNotFound || security.CheckPassword(user.Hash, body.Password) != nil {
		log.WithFields(log.Fields{
			"username": body.Username,
		}).Warn("rejected login")
		abort(c, http.StatusUnauthorized, security.ErrInvalidCredentials.Error())
		return
	}

	token, err := security.IssueToken(s.config.Security, user)
	if err != nil {
		s.failed(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, wire.LoginReply{Token: token, ID: wire.ID(user.ID)})
}

func (s *Server) ListFeedback(c *gin.Context) {
	list, err := s.database.ListFeedback(c.Request.Context())
	if err != nil {
		s.failed(c, "list feedback", err)
		return
	}
	out := make([]wire.FeedbackOut, 0, len(list))
	for _, f := range list {
		out = append(out, wire.NewFeedbackOut(f))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) InsertFeedback(c *gin.Context) {
	var body wire.FeedbackCreate
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	userID, ok := security.UserID(c)
	if !ok && body.UserID != "" {
		userID, _ = strconv.ParseInt(body.UserID, 10, 64)
	}
	author := body.Author
	if author == "" {
		author = security.Username(c)
	}

	f, err := s.database.InsertFeedback(c.Request.Context(), userID, watt.Feedback{Author: author, Message: body.Message})
	if err != nil {
		s.failed(c, "insert feedback", err)
		return
	}
	c.JSON(http.StatusCreated, wire.NewFeedbackOut(f))
}

func (s *Server) UpdateFeedback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body wire.FeedbackUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	f, err := s.database.UpdateFeedback(c.Request.Context(), id, body.Message)
	if err == watt.ErrNotFound {
		abort(c, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		s.failed(c, "update feedback", err)
		return
	}
	c.JSON(http.StatusOK, wire.NewFeedbackOut(f))
}

func (s *Server) DeleteFeedback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := s.database.DeleteFeedback(c.Request.Context(), id)
	if err == watt.ErrNotFound {
		abort(c, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		s.failed(c, "delete feedback", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListAppliances(c *gin.Context) {
	list, err := s.database.ListAppliances(c.Request.Context())
	if err != nil {
		s.failed(c, "list appliances", err)
		return
	}
	out := make([]wire.Appliance, 0, len(list))
	for _, a := range list {
		out = append(out, wire.NewAppliance(a))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) InsertAppliance(c *gin.Context) {
	var body wire.Appliance
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	a, err := s.database.InsertAppliance(c.Request.Context(), body.Canonical())
	if err != nil {
		s.failed(c, "insert appliance", err)
		return
	}
	c.JSON(http.StatusCreated, wire.NewAppliance(a))
}

func (s *Server) UpdateAppliance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body wire.Appliance
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	in := body.Canonical()
	in.ID = id

	a, err := s.database.UpdateAppliance(c.Request.Context(), in)
	if err == watt.ErrNotFound {
		abort(c, http.StatusNotFound, "appliance not found")
		return
	}
	if err != nil {
		s.failed(c, "update appliance", err)
		return
	}
	c.JSON(http.StatusOK, wire.NewAppliance(a))
}

func (s *Server) DeleteAppliance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := s.database.DeleteAppliance(c.Request.Context(), id)
	if err == watt.ErrNotFound {
		abort(c, http.StatusNotFound, "appliance not found")
		return
	}
	if err != nil {
		s.failed(c, "delete appliance", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) failed(c *gin.Context, action string, err error) {
	log.WithFields(log.Fields{
		"err":    err,
		"action": action,
	}).Error("request failed")
	abort(c, http.StatusInternalServerError, internalError)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	log.WithFields(log.Fields{
		"err":  err,
		"path": c.FullPath(),
	}).Warn("Failed to bind JSON")
	abort(c, http.StatusBadRequest, "invalid request body")
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, wire.ErrorBody{Error: msg})
}

// Package remote is the HTTP adapter for the registry API. Every call is
// authenticated with the bearer token read from the session right before
// the request; calls without a token never reach the network.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	watt "watt/watt-client"
	"watt/watt-client/pkg/config"
	"watt/watt-client/pkg/wire"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const maxBody = 4 << 20

// Session supplies credentials. *session.Store satisfies it.
type Session interface {
	Token(ctx context.Context) (string, error)
	UserID(ctx context.Context) (string, error)
}

type Client struct {
	baseURL    string
	feedback   string
	appliances string
	users      string

	http      *http.Client
	session   Session
	onExpired func(context.Context)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSessionExpiredHandler registers fn to run whenever an authenticated
// call comes back 401.
func WithSessionExpiredHandler(fn func(context.Context)) Option {
	return func(c *Client) { c.onExpired = fn }
}

func New(cfg *config.ClientConfig, sess Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		feedback:   cfg.FeedbackPath,
		appliances: cfg.AppliancesPath,
		users:      cfg.UsersPath,
		http:       &http.Client{Timeout: cfg.Timeout()},
		session:    sess,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) ListFeedback(ctx context.Context) ([]watt.Feedback, error) {
	const op = "list_feedback"
	body, err := c.do(ctx, op, http.MethodGet, c.feedback, true, nil)
	if err != nil {
		return nil, err
	}
	list, err := wire.DecodeFeedbackList(body)
	if err != nil {
		return nil, c.protocol(op, err)
	}
	return list, nil
}

// CreateFeedback posts a new entry. The session user id is attached when
// one is stored.
func (c *Client) CreateFeedback(ctx context.Context, author, message string) (watt.Feedback, error) {
	const op = "create_feedback"
	req := wire.FeedbackCreate{Author: author, Message: message}
	if id, err := c.session.UserID(ctx); err == nil {
		req.UserID = id
	}
	body, err := c.do(ctx, op, http.MethodPost, c.feedback, true, req)
	if err != nil {
		return watt.Feedback{}, err
	}
	f, err := wire.DecodeFeedback(body)
	if err != nil {
		return watt.Feedback{}, c.protocol(op, err)
	}
	return f, nil
}

// UpdateFeedback changes the message of entry id. A nil record with a nil
// error means the server confirmed without echoing the record.
func (c *Client) UpdateFeedback(ctx context.Context, id int64, message string) (*watt.Feedback, error) {
	const op = "update_feedback"
	body, err := c.do(ctx, op, http.MethodPut, c.feedbackPath(id), true, wire.FeedbackUpdate{Message: message})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	f, err := wire.DecodeFeedback(body)
	if err != nil {
		return nil, c.protocol(op, err)
	}
	return &f, nil
}

func (c *Client) DeleteFeedback(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete_feedback", http.MethodDelete, c.feedbackPath(id), true, nil)
	return err
}

func (c *Client) ListAppliances(ctx context.Context) ([]watt.Appliance, error) {
	const op = "list_appliances"
	body, err := c.do(ctx, op, http.MethodGet, c.appliances, true, nil)
	if err != nil {
		return nil, err
	}
	list, err := wire.DecodeApplianceList(body)
	if err != nil {
		return nil, c.protocol(op, err)
	}
	return list, nil
}

func (c *Client) CreateAppliance(ctx context.Context, a watt.Appliance) (watt.Appliance, error) {
	const op = "create_appliance"
	req := wire.NewAppliance(a)
	req.ID = 0
	req.RegisteredAt = ""
	body, err := c.do(ctx, op, http.MethodPost, c.appliances, true, req)
	if err != nil {
		return watt.Appliance{}, err
	}
	out, err := wire.DecodeAppliance(body)
	if err != nil {
		return watt.Appliance{}, c.protocol(op, err)
	}
	return out, nil
}

// UpdateAppliance sends the full record. Like UpdateFeedback, a nil record
// with a nil error is a confirmation without a body.
func (c *Client) UpdateAppliance(ctx context.Context, a watt.Appliance) (*watt.Appliance, error) {
	const op = "update_appliance"
	body, err := c.do(ctx, op, http.MethodPut, c.appliancePath(a.ID), true, wire.NewAppliance(a))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	out, err := wire.DecodeAppliance(body)
	if err != nil {
		return nil, c.protocol(op, err)
	}
	return &out, nil
}

func (c *Client) DeleteAppliance(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete_appliance", http.MethodDelete, c.appliancePath(id), true, nil)
	return err
}

// Login exchanges credentials for a token. It does not touch the session;
// storing the result is the caller's job.
func (c *Client) Login(ctx context.Context, creds watt.Credentials) (watt.LoginResult, error) {
	const op = "login"
	body, err := c.do(ctx, op, http.MethodPost, c.users+"/login", false,
		wire.Login{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return watt.LoginResult{}, err
	}
	var reply wire.LoginReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return watt.LoginResult{}, c.protocol(op, err)
	}
	if reply.Token == "" {
		return watt.LoginResult{}, c.protocol(op, errors.New("login reply without token"))
	}
	res := watt.LoginResult{Token: reply.Token}
	if reply.ID != 0 {
		res.UserID = strconv.FormatInt(int64(reply.ID), 10)
	}
	return res, nil
}

func (c *Client) Register(ctx context.Context, creds watt.Credentials) error {
	_, err := c.do(ctx, "register", http.MethodPost, c.users+"/register", false,
		wire.Login{Username: creds.Username, Password: creds.Password})
	return err
}

func (c *Client) feedbackPath(id int64) string {
	return fmt.Sprintf("%s/%d", c.feedback, id)
}

func (c *Client) appliancePath(id int64) string {
	return fmt.Sprintf("%s/%d", c.appliances, id)
}

func (c *Client) protocol(op string, err error) error {
	log.WithFields(log.Fields{
		"op":  op,
		"err": err,
	}).Error("unexpected response body")
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

// do performs one request and returns the body of a 2xx response. Every
// other outcome is an *Error.
func (c *Client) do(ctx context.Context, op, method, path string, authenticated bool, payload interface{}) ([]byte, error) {
	var token string
	if authenticated {
		t, err := c.session.Token(ctx)
		if err != nil {
			observe(op, KindUnauthenticated, time.Time{})
			return nil, &Error{Kind: KindUnauthenticated, Op: op, Err: err}
		}
		token = t
	}

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindProtocol, Op: op, Err: errors.Wrap(err, "encode request")}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: errors.Wrap(err, "build request")}
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger := log.WithFields(log.Fields{
		"op":         op,
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe(op, KindTransport, started)
		logger.WithFields(log.Fields{"err": err}).Warn("request failed")
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		observe(op, KindTransport, started)
		logger.WithFields(log.Fields{"err": err}).Warn("reading response failed")
		return nil, &Error{Kind: KindTransport, Op: op, Status: resp.StatusCode, Err: err}
	}

	logger = logger.WithFields(log.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(started),
	})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		observe(op, 0, started)
		logger.Debug("request ok")
		return body, nil
	}

	message := errorMessage(resp.StatusCode, body)
	if resp.StatusCode == http.StatusUnauthorized && authenticated {
		observe(op, KindSessionExpired, started)
		logger.Warn("session expired")
		if c.onExpired != nil {
			c.onExpired(ctx)
		}
		return nil, &Error{Kind: KindSessionExpired, Op: op, Status: resp.StatusCode, Message: message}
	}

	observe(op, KindHTTP, started)
	logger.WithFields(log.Fields{"message": message}).Warn("request rejected")
	return nil, &Error{Kind: KindHTTP, Op: op, Status: resp.StatusCode, Message: message}
}

// errorMessage pulls a readable message out of an error body, falling back
// to the generic one when the body is not the expected envelope.
func errorMessage(status int, body []byte) string {
	var eb wire.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := eb.Text(); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}

package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	watt "watt/watt-client"
	"watt/watt-client/pkg/config"
	"watt/watt-client/pkg/wire"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenNotYetValid   = errors.New("token not yet valid")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	TokenCookie = "watt-token"

	ctxUserID   = "jwt_id"
	ctxUsername = "jwt_name"
)

// IssueToken signs an HS256 token for user, valid from now for the
// configured TTL.
func IssueToken(cfg *config.SecurityConfig, user watt.User) (string, error) {
	if cfg == nil || cfg.Secret == "" {
		return "", config.ErrInvalidConfig
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"id":   strconv.FormatInt(user.ID, 10),
		"name": user.Username,
		"nbf":  now.Add(-time.Second).Unix(),
		"exp":  now.Add(time.Duration(cfg.TokenTTLMinutes) * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// Authenticate rejects requests without a valid bearer token. Without an
// Authorization header the watt-token cookie is used instead.
func Authenticate(cfg *config.SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enforce {
			c.Next()
			return
		}

		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			headerParts := strings.SplitN(header, " ", 2)
			if len(headerParts) != 2 || headerParts[0] != "Bearer" || headerParts[1] == "" {
				log.Warn("unauthorised: malformed authorization header")
				unauthorised(c, "missing token")
				return
			}
			token = headerParts[1]
		} else if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
			token = cookie
		} else {
			log.Warn("unauthorised: missing bearer token")
			unauthorised(c, "missing token")
			return
		}

		tkn, err := VerifyToken(cfg, token)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Warn("unauthorised: verifying token")
			unauthorised(c, "invalid or expired token")
			return
		}

		claims := tkn.Claims.(jwt.MapClaims)
		id, _ := claims["id"].(string)
		name, _ := claims["name"].(string)
		c.Set(ctxUserID, id)
		c.Set(ctxUsername, name)

		c.Next()
	}
}

func unauthorised(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, wire.ErrorBody{Error: msg})
}

// VerifyToken parses token and checks its signature and validity window.
// A leading "Bearer " is tolerated.
func VerifyToken(cfg *config.SecurityConfig, token string) (*jwt.Token, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	tkn, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			switch {
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, ErrTokenExpired
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, ErrTokenNotYetValid
			}
		}
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	claims, ok := tkn.Claims.(jwt.MapClaims)
	if !ok || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	now := time.Now().UTC().Unix()
	expiry, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	if now > int64(expiry) {
		return nil, ErrTokenExpired
	}
	if nbf, ok := claims["nbf"].(float64); ok && now < int64(nbf) {
		return nil, ErrTokenNotYetValid
	}

	return tkn, nil
}

// UserID returns the authenticated user's id, if Authenticate stored one.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	s, _ := v.(string)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func Username(c *gin.Context) string {
	return c.GetString(ctxUsername)
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(b), nil
}

// CheckPassword returns ErrInvalidCredentials unless password matches hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

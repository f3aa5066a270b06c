package watt_client

import "github.com/pkg/errors"

var (
	// ErrNotFound and ErrConflict are returned by registry backends.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Feedback is the canonical in-memory shape of a feedback entry. Wire
// dialects are normalized into it by pkg/wire.
type Feedback struct {
	ID        int64  `json:"id" db:"id"`
	Author    string `json:"author" db:"author"`
	Message   string `json:"message" db:"message"`
	CreatedAt string `json:"created_at" db:"created_at"`
}

// Appliance is a registered household appliance.
type Appliance struct {
	ID              int64  `json:"id" db:"id"`
	Name            string `json:"name" db:"name" validate:"required"`
	PowerWatts      int64  `json:"power_watts" db:"power_watts" validate:"gte=0"`
	DailyUsageHours int64  `json:"daily_usage_hours" db:"daily_usage_hours" validate:"gte=0"`
	RegisteredAt    string `json:"registered_at" db:"registered_at"`
}

// PowerBand buckets an appliance by its rated power.
type PowerBand string

const (
	PowerLow    PowerBand = "low"
	PowerMedium PowerBand = "medium"
	PowerHigh   PowerBand = "high"
)

func (a Appliance) Band() PowerBand {
	switch {
	case a.PowerWatts >= 1000:
		return PowerHigh
	case a.PowerWatts >= 500:
		return PowerMedium
	}
	return PowerLow
}

type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResult is what a successful login hands back: the bearer token and
// the user id it belongs to.
type LoginResult struct {
	Token  string `json:"token"`
	UserID string `json:"id"`
}

// User is a registered account as the reference server stores it.
type User struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Hash     string `json:"-" db:"hash"`
}

// Package wire maps between the JSON dialects the registry server speaks
// and the canonical record shapes of watt_client.
//
// Feedback has been seen in several shapes:
//
//	{"id", "comentario", "data_feedback"}
//	{"feedback_id", "mensagem", "data_feedback"}
//	{"id", "usuario", "mensagem", "data"}
//	{"id", "author", "message", "created_at"}   (canonical, used by snapshots)
//
// Appliances come as {"aparelho_id", "nome", "potencia", "horas_uso",
// "data_cadastro"} or in the canonical English form. Decoding accepts all of
// them; encoding always produces the server dialect.
package wire

import (
	"bytes"
	"encoding/json"
	"strconv"

	watt "watt/watt-client"

	"github.com/pkg/errors"
)

var ErrMalformed = errors.New("malformed payload")

// ID accepts a JSON number or a numeric string.
type ID int64

func (i *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return errors.Wrapf(ErrMalformed, "id %q", s)
		}
		*i = ID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*i = ID(n)
	return nil
}

type feedbackIn struct {
	ID           *ID     `json:"id"`
	FeedbackID   *ID     `json:"feedback_id"`
	Usuario      string  `json:"usuario"`
	Author       string  `json:"author"`
	Comentario   *string `json:"comentario"`
	Mensagem     *string `json:"mensagem"`
	Message      *string `json:"message"`
	DataFeedback string  `json:"data_feedback"`
	Data         string  `json:"data"`
	CreatedAt    string  `json:"created_at"`
}

func (f feedbackIn) canonical() (watt.Feedback, error) {
	var out watt.Feedback
	switch {
	case f.FeedbackID != nil:
		out.ID = int64(*f.FeedbackID)
	case f.ID != nil:
		out.ID = int64(*f.ID)
	default:
		return out, errors.Wrap(ErrMalformed, "feedback without id")
	}
	switch {
	case f.Mensagem != nil:
		out.Message = *f.Mensagem
	case f.Comentario != nil:
		out.Message = *f.Comentario
	case f.Message != nil:
		out.Message = *f.Message
	default:
		return out, errors.Wrapf(ErrMalformed, "feedback %d without message", out.ID)
	}
	out.Author = firstNonEmpty(f.Usuario, f.Author)
	out.CreatedAt = firstNonEmpty(f.DataFeedback, f.Data, f.CreatedAt)
	return out, nil
}

// DecodeFeedback decodes a single feedback object in any known dialect.
func DecodeFeedback(b []byte) (watt.Feedback, error) {
	var in feedbackIn
	if err := json.Unmarshal(b, &in); err != nil {
		return watt.Feedback{}, errors.Wrap(ErrMalformed, err.Error())
	}
	return in.canonical()
}

// DecodeFeedbackList decodes a JSON array of feedback objects. The server
// order is kept; duplicate ids collapse onto the first position with the
// last occurrence's fields.
func DecodeFeedbackList(b []byte) ([]watt.Feedback, error) {
	var in []feedbackIn
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	out := make([]watt.Feedback, 0, len(in))
	for _, f := range in {
		c, err := f.canonical()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return DedupeFeedback(out), nil
}

func DedupeFeedback(list []watt.Feedback) []watt.Feedback {
	pos := make(map[int64]int, len(list))
	out := make([]watt.Feedback, 0, len(list))
	for _, f := range list {
		if i, ok := pos[f.ID]; ok {
			out[i] = f
			continue
		}
		pos[f.ID] = len(out)
		out = append(out, f)
	}
	return out
}

type applianceIn struct {
	AparelhoID   *ID    `json:"aparelho_id"`
	ID           *ID    `json:"id"`
	Nome         string `json:"nome"`
	Name         string `json:"name"`
	Potencia     *int64 `json:"potencia"`
	PowerWatts   *int64 `json:"power_watts"`
	HorasUso     *int64 `json:"horas_uso"`
	DailyUsage   *int64 `json:"daily_usage_hours"`
	DataCadastro string `json:"data_cadastro"`
	RegisteredAt string `json:"registered_at"`
}

func (a applianceIn) canonical() (watt.Appliance, error) {
	var out watt.Appliance
	switch {
	case a.AparelhoID != nil:
		out.ID = int64(*a.AparelhoID)
	case a.ID != nil:
		out.ID = int64(*a.ID)
	default:
		return out, errors.Wrap(ErrMalformed, "appliance without id")
	}
	out.Name = firstNonEmpty(a.Nome, a.Name)
	out.PowerWatts = firstInt(a.Potencia, a.PowerWatts)
	out.DailyUsageHours = firstInt(a.HorasUso, a.DailyUsage)
	out.RegisteredAt = firstNonEmpty(a.DataCadastro, a.RegisteredAt)
	return out, nil
}

func DecodeAppliance(b []byte) (watt.Appliance, error) {
	var in applianceIn
	if err := json.Unmarshal(b, &in); err != nil {
		return watt.Appliance{}, errors.Wrap(ErrMalformed, err.Error())
	}
	return in.canonical()
}

func DecodeApplianceList(b []byte) ([]watt.Appliance, error) {
	var in []applianceIn
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	out := make([]watt.Appliance, 0, len(in))
	pos := make(map[int64]int, len(in))
	for _, a := range in {
		c, err := a.canonical()
		if err != nil {
			return nil, err
		}
		if i, ok := pos[c.ID]; ok {
			out[i] = c
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}
	return out, nil
}

// FeedbackCreate is the body of POST /feedback.
type FeedbackCreate struct {
	UserID  string `json:"usuario_id,omitempty"`
	Author  string `json:"usuario,omitempty"`
	Message string `json:"mensagem" binding:"required"`
}

// FeedbackUpdate is the body of PUT /feedback/{id}.
type FeedbackUpdate struct {
	Message string `json:"mensagem" binding:"required"`
}

// FeedbackOut is how the server renders a feedback record.
type FeedbackOut struct {
	ID        int64  `json:"feedback_id"`
	Author    string `json:"usuario,omitempty"`
	Message   string `json:"mensagem"`
	CreatedAt string `json:"data_feedback"`
}

func NewFeedbackOut(f watt.Feedback) FeedbackOut {
	return FeedbackOut{ID: f.ID, Author: f.Author, Message: f.Message, CreatedAt: f.CreatedAt}
}

// Appliance is the server dialect of an appliance, used for requests and
// responses alike.
type Appliance struct {
	ID              int64  `json:"aparelho_id,omitempty"`
	Name            string `json:"nome" binding:"required"`
	PowerWatts      int64  `json:"potencia" binding:"gte=0"`
	DailyUsageHours int64  `json:"horas_uso" binding:"gte=0"`
	RegisteredAt    string `json:"data_cadastro,omitempty"`
}

func NewAppliance(a watt.Appliance) Appliance {
	return Appliance{
		ID:              a.ID,
		Name:            a.Name,
		PowerWatts:      a.PowerWatts,
		DailyUsageHours: a.DailyUsageHours,
		RegisteredAt:    a.RegisteredAt,
	}
}

func (a Appliance) Canonical() watt.Appliance {
	return watt.Appliance{
		ID:              a.ID,
		Name:            a.Name,
		PowerWatts:      a.PowerWatts,
		DailyUsageHours: a.DailyUsageHours,
		RegisteredAt:    a.RegisteredAt,
	}
}

// Login is the body of both POST /users/login and /users/register.
type Login struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"senha" binding:"required"`
}

type LoginReply struct {
	Token string `json:"token"`
	ID    ID     `json:"id"`
}

// ErrorBody is the error envelope. Older endpoints fill "message" instead
// of "error".
type ErrorBody struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e ErrorBody) Text() string {
	return firstNonEmpty(e.Error, e.Message)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

package reconciler

import (
	"context"

	watt "watt/watt-client"
	"watt/watt-client/pkg/feedback"
	"watt/watt-client/pkg/validate"
)

// FeedbackSource routes a feedback screen through the shared store, so the
// snapshot and every other screen see the same confirmed changes.
type FeedbackSource struct {
	Store *feedback.Store
}

func (s FeedbackSource) List(ctx context.Context) ([]watt.Feedback, error) {
	if err := s.Store.Load(ctx); err != nil {
		return nil, err
	}
	return s.Store.Items(), nil
}

func (s FeedbackSource) Update(ctx context.Context, f watt.Feedback) (*watt.Feedback, error) {
	out, err := s.Store.Edit(ctx, f.ID, f.Message)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s FeedbackSource) Delete(ctx context.Context, id int64) error {
	return s.Store.Remove(ctx, id)
}

func FeedbackKey(f watt.Feedback) int64 { return f.ID }

// ApplianceRemote is what the appliance list needs from the client.
type ApplianceRemote interface {
	ListAppliances(ctx context.Context) ([]watt.Appliance, error)
	UpdateAppliance(ctx context.Context, a watt.Appliance) (*watt.Appliance, error)
	DeleteAppliance(ctx context.Context, id int64) error
}

// ApplianceSource talks to the server directly; appliances have no local
// snapshot.
type ApplianceSource struct {
	Remote ApplianceRemote
}

func (s ApplianceSource) List(ctx context.Context) ([]watt.Appliance, error) {
	return s.Remote.ListAppliances(ctx)
}

func (s ApplianceSource) Update(ctx context.Context, a watt.Appliance) (*watt.Appliance, error) {
	if err := validate.Struct(a); err != nil {
		return nil, err
	}
	return s.Remote.UpdateAppliance(ctx, a)
}

func (s ApplianceSource) Delete(ctx context.Context, id int64) error {
	return s.Remote.DeleteAppliance(ctx, id)
}

func ApplianceKey(a watt.Appliance) int64 { return a.ID }

func NewFeedbackList(parent context.Context, store *feedback.Store) *List[watt.Feedback] {
	return New[watt.Feedback](parent, "feedback", FeedbackSource{Store: store}, FeedbackKey)
}

func NewApplianceList(parent context.Context, r ApplianceRemote) *List[watt.Appliance] {
	return New[watt.Appliance](parent, "appliances", ApplianceSource{Remote: r}, ApplianceKey)
}

// Package cache persists the feedback list as one serialized snapshot. The
// snapshot seeds the UI before the first fetch; it is never authoritative.
package cache

import (
	"bytes"
	"context"
	"encoding/json"

	watt "watt/watt-client"
	"watt/watt-client/pkg/storage"
	"watt/watt-client/pkg/wire"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const snapshotVersion = 1

type snapshot struct {
	Version   int             `json:"version"`
	Feedbacks []watt.Feedback `json:"feedbacks"`
}

type Cache struct {
	kv storage.KV
}

func New(kv storage.KV) *Cache {
	return &Cache{kv: kv}
}

// Load returns the stored list and whether one existed. Snapshots written
// as a bare array (any wire dialect) are accepted as well.
func (c *Cache) Load(ctx context.Context) ([]watt.Feedback, bool, error) {
	raw, err := c.kv.Get(ctx, storage.KeyFeedbacks)
	if err == storage.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read snapshot")
	}

	b := bytes.TrimSpace([]byte(raw))
	if len(b) > 0 && b[0] == '[' {
		list, err := wire.DecodeFeedbackList(b)
		if err != nil {
			return nil, false, errors.Wrap(err, "decode legacy snapshot")
		}
		return list, true, nil
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, false, errors.Wrap(err, "decode snapshot")
	}
	if snap.Version != snapshotVersion {
		log.WithFields(log.Fields{
			"version": snap.Version,
		}).Warn("ignoring snapshot with unknown version")
		return nil, false, nil
	}
	if snap.Feedbacks == nil {
		snap.Feedbacks = []watt.Feedback{}
	}
	return snap.Feedbacks, true, nil
}

// Save overwrites the snapshot with list.
func (c *Cache) Save(ctx context.Context, list []watt.Feedback) error {
	if list == nil {
		list = []watt.Feedback{}
	}
	b, err := json.Marshal(snapshot{Version: snapshotVersion, Feedbacks: list})
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return errors.Wrap(c.kv.Set(ctx, storage.KeyFeedbacks, string(b)), "write snapshot")
}

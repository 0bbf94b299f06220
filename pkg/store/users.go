package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/stream"
	"huddle/pkg/utils"
)

func userKey(uid string) string     { return "user:" + uid + ":profile" }
func splitPrefix(uid string) string { return "user:" + uid + ":split:" }

// TopicUser is the snapshot topic carrying models.User for one profile.
func TopicUser(uid string) string { return userKey(uid) }

// SaveUser upserts a user profile document and publishes the snapshot.
func SaveUser(u models.User) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if u.ID == "" {
		return fmt.Errorf("user id required")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := db.Set([]byte(userKey(u.ID)), data, pebble.Sync); err != nil {
		logger.Error("save_user_failed", "user", u.ID, "error", err)
		return err
	}
	logger.Debug("user_saved", "user", u.ID)
	if hub != nil {
		hub.Publish(TopicUser(u.ID), u)
	}
	return nil
}

// GetUser loads a user profile, parse-and-default at the boundary: a
// missing document yields a zero profile with the id set, and a stored
// document always comes back with non-nil maps so callers never re-derive
// defaults.
func GetUser(uid string) (models.User, error) {
	if db == nil {
		return models.User{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	u := models.User{ID: uid}
	v, closer, err := db.Get([]byte(userKey(uid)))
	if err != nil {
		if err == pebble.ErrNotFound {
			u.CoursesProgress = map[string]float64{}
			return u, nil
		}
		return models.User{}, err
	}
	defer func() {
		if closer != nil {
			_ = closer.Close()
		}
	}()
	if err := json.Unmarshal(v, &u); err != nil {
		return models.User{}, fmt.Errorf("invalid stored user: %w", err)
	}
	u.ID = uid
	if u.CoursesProgress == nil {
		u.CoursesProgress = map[string]float64{}
	}
	return u, nil
}

// WatchUser subscribes to profile snapshots for one user.
func WatchUser(uid string) *stream.Sub {
	return hub.Subscribe(TopicUser(uid))
}

// SaveReport appends a moderation report.
func SaveReport(rep models.Report) (models.Report, error) {
	if db == nil {
		return models.Report{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	if rep.ID == "" {
		rep.ID = utils.GenReportID()
	}
	if rep.TS == 0 {
		rep.TS = time.Now().UTC().UnixNano()
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to marshal report: %w", err)
	}
	key := "report:" + rep.ID
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_report_failed", "report", rep.ID, "error", err)
		return models.Report{}, err
	}
	logger.Info("report_saved", "report", rep.ID, "message", rep.Message, "reporter", rep.Reporter)
	return rep, nil
}

// ListReports returns all stored moderation reports.
func ListReports() ([]models.Report, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("report:")
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Report
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var rep models.Report
		if err := json.Unmarshal(iter.Value(), &rep); err != nil {
			continue
		}
		out = append(out, rep)
	}
	return out, iter.Error()
}

// ReplaceSplits replaces a user's shared-splits list wholesale in a single
// batched write: delete the old entries, write the new ones, commit once.
func ReplaceSplits(uid string, splits []models.Split) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(splitPrefix(uid))
	b := db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return err
	}
	for i, sp := range splits {
		data, err := json.Marshal(sp)
		if err != nil {
			return fmt.Errorf("failed to marshal split: %w", err)
		}
		key := fmt.Sprintf("%s%06d", prefix, i)
		if err := b.Set([]byte(key), data, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("replace_splits_failed", "user", uid, "error", err)
		return err
	}
	logger.Info("splits_replaced", "user", uid, "count", len(splits))
	return nil
}

// ListSplits returns a user's shared-splits list in stored order.
func ListSplits(uid string) ([]models.Split, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(splitPrefix(uid))
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Split
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var sp models.Split
		if err := json.Unmarshal(iter.Value(), &sp); err != nil {
			continue
		}
		out = append(out, sp)
	}
	return out, iter.Error()
}

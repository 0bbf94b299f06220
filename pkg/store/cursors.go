package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/stream"
)

// Read cursors live under user:<uid>:lastread:<channelID> for channels and
// user:<uid>:lastreaddm:<threadID> for DM threads. One document per
// (user, stream); writes are whole-document upserts, last write wins.

func cursorKey(uid string, ref StreamRef) string {
	if ref.Kind == DMStream {
		return "user:" + uid + ":lastreaddm:" + ref.ID
	}
	return "user:" + uid + ":lastread:" + ref.ID
}

// TopicCursor is the snapshot topic carrying models.ReadCursor for one
// (user, stream) pair.
func TopicCursor(uid string, ref StreamRef) string {
	return cursorKey(uid, ref)
}

// SaveCursor upserts the read cursor for a (user, stream) pair and
// publishes the new cursor snapshot.
func SaveCursor(uid string, ref StreamRef, c models.ReadCursor) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cursor: %w", err)
	}
	key := cursorKey(uid, ref)
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_cursor_failed", "key", key, "error", err)
		return err
	}
	cursorWrites.Inc()
	logger.Debug("cursor_saved", "user", uid, "stream", ref.ID, "ts", c.TS)
	if hub != nil {
		hub.Publish(TopicCursor(uid, ref), c)
	}
	return nil
}

// GetCursor returns the stored read cursor for a (user, stream) pair. A
// missing cursor is not an error: it decodes to the zero cursor, meaning
// nothing has been read yet.
func GetCursor(uid string, ref StreamRef) (models.ReadCursor, error) {
	if db == nil {
		return models.ReadCursor{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(cursorKey(uid, ref)))
	if err != nil {
		if err == pebble.ErrNotFound {
			return models.ReadCursor{}, nil
		}
		return models.ReadCursor{}, err
	}
	defer func() {
		if closer != nil {
			_ = closer.Close()
		}
	}()
	var c models.ReadCursor
	if err := json.Unmarshal(v, &c); err != nil {
		return models.ReadCursor{}, fmt.Errorf("invalid stored cursor: %w", err)
	}
	return c, nil
}

// WatchCursor subscribes to cursor snapshots for a (user, stream) pair.
func WatchCursor(uid string, ref StreamRef) *stream.Sub {
	return hub.Subscribe(TopicCursor(uid, ref))
}

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/stream"
	"huddle/pkg/utils"
)

var (
	db     *pebble.DB
	dbPath string
	hub    *stream.Hub
)

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// StreamKind selects the message namespace: channel streams or DM threads.
type StreamKind string

const (
	ChannelStream StreamKind = "channel"
	DMStream      StreamKind = "dm"
)

// StreamRef identifies one ordered message stream.
type StreamRef struct {
	Kind StreamKind
	ID   string
}

func Channel(id string) StreamRef { return StreamRef{Kind: ChannelStream, ID: id} }
func DM(thread string) StreamRef  { return StreamRef{Kind: DMStream, ID: thread} }

func (r StreamRef) msgPrefix() string { return string(r.Kind) + ":" + r.ID + ":msg:" }

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// SetHub attaches the snapshot hub. After every mutation the store pushes
// full-state snapshots to the affected topics; all subscribers, including
// the writer, observe changes by round-trip through the store.
func SetHub(h *stream.Hub) { hub = h }

// keyUpperBound returns the smallest key greater than every key with the
// given prefix, for bounded iteration.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// SaveMessage appends a message to a stream. The store assigns the id (when
// empty) and the ordering timestamp; the key carries a sortable timestamp
// prefix so iteration yields insertion order.
func SaveMessage(ref StreamRef, msg models.Message) (models.Message, error) {
	if db == nil {
		return models.Message{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	if msg.ID == "" {
		msg.ID = utils.GenMsgID()
	}
	msg.Stream = ref.ID
	msg.TS = ts
	key := fmt.Sprintf("%s%020d-%06d", ref.msgPrefix(), ts, s)

	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "stream", ref.ID, "key", key, "error", err)
		return models.Message{}, err
	}
	// Index by message id so reactions/pins/deletes can locate the stream
	// entry without scanning.
	idxKey := "msgid:" + msg.ID
	if err := db.Set([]byte(idxKey), []byte(key), pebble.Sync); err != nil {
		logger.Error("save_message_index_failed", "idx_key", idxKey, "error", err)
		return models.Message{}, err
	}
	messagesSaved.WithLabelValues(string(ref.Kind)).Inc()
	logger.Info("message_saved", "stream", ref.ID, "key", key, "msg_id", msg.ID)
	publishStream(ref)
	return msg, nil
}

// ListMessages returns messages for a stream in ascending timestamp order.
// A positive limit returns only the newest limit messages (still ascending).
func ListMessages(ref StreamRef, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(ref.msgPrefix())
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			logger.Error("list_messages_invalid_json", "stream", ref.ID, "error", err)
			continue
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// LatestMessage returns the newest message's compact metadata for a stream
// (the order-by-ts-descending, limit-1 read). ok is false for an empty
// stream.
func LatestMessage(ref StreamRef) (models.LatestMeta, bool, error) {
	if db == nil {
		return models.LatestMeta{}, false, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(ref.msgPrefix())
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return models.LatestMeta{}, false, err
	}
	defer iter.Close()
	if !iter.Last() {
		return models.LatestMeta{}, false, iter.Error()
	}
	var m models.Message
	if err := json.Unmarshal(iter.Value(), &m); err != nil {
		return models.LatestMeta{}, false, fmt.Errorf("invalid stored message: %w", err)
	}
	return models.LatestMeta{ID: m.ID, Author: m.Author, TS: m.TS}, true, nil
}

// GetMessage loads a message by id via the id index. It also returns the
// stream key so callers can write a modified copy back in place.
func GetMessage(id string) (models.Message, string, error) {
	if db == nil {
		return models.Message{}, "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	kv, closer, err := db.Get([]byte("msgid:" + id))
	if err != nil {
		return models.Message{}, "", err
	}
	key := string(kv)
	if closer != nil {
		_ = closer.Close()
	}
	v, closer2, err := db.Get([]byte(key))
	if err != nil {
		return models.Message{}, "", err
	}
	defer func() {
		if closer2 != nil {
			_ = closer2.Close()
		}
	}()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return models.Message{}, "", fmt.Errorf("invalid stored message: %w", err)
	}
	return m, key, nil
}

// UpdateMessage writes a modified message back to its stream key. This is
// the in-place field update used for reactions and pin toggles; it is a
// plain overwrite, so concurrent read-modify-write cycles can lose one
// writer's change.
func UpdateMessage(ref StreamRef, key string, msg models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("update_message_failed", "key", key, "error", err)
		return err
	}
	logger.Info("message_updated", "stream", ref.ID, "msg_id", msg.ID)
	publishStream(ref)
	return nil
}

// DeleteMessage physically removes a message and its id index entry.
func DeleteMessage(ref StreamRef, id string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	kv, closer, err := db.Get([]byte("msgid:" + id))
	if err != nil {
		return err
	}
	key := append([]byte(nil), kv...)
	if closer != nil {
		_ = closer.Close()
	}
	if err := db.Delete(key, pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "msg_id", id, "error", err)
		return err
	}
	if err := db.Delete([]byte("msgid:"+id), pebble.Sync); err != nil {
		return err
	}
	logger.Info("message_deleted", "stream", ref.ID, "msg_id", id)
	publishStream(ref)
	return nil
}

// PinnedCount returns how many messages are currently pinned in a stream.
func PinnedCount(ref StreamRef) (int, error) {
	msgs, err := ListMessages(ref, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.Pinned {
			n++
		}
	}
	return n, nil
}

// RefOfKey recovers the stream ref from a message's storage key.
func RefOfKey(key string) (StreamRef, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 {
		return StreamRef{}, false
	}
	switch StreamKind(parts[0]) {
	case ChannelStream:
		return Channel(parts[1]), true
	case DMStream:
		return DM(parts[1]), true
	}
	return StreamRef{}, false
}

// ListKeys returns raw store keys with the given prefix, for admin
// inspection tooling.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = keyUpperBound([]byte(prefix))
	}
	iter, err := db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		if prefix != "" && !bytes.HasPrefix(iter.Key(), []byte(prefix)) {
			break
		}
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}

// GetKey returns the raw value stored at a key.
func GetKey(key string) ([]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// publishStream pushes full-state snapshots for a stream: the complete
// ascending message list and the latest-message metadata, on their own
// topics. Subscribers get replace-on-change snapshots, never deltas.
func publishStream(ref StreamRef) {
	if hub == nil {
		return
	}
	msgs, err := ListMessages(ref, 0)
	if err != nil {
		logger.Error("publish_stream_list_failed", "stream", ref.ID, "error", err)
		return
	}
	hub.Publish(TopicMessages(ref), msgs)
	var meta models.LatestMeta
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		meta = models.LatestMeta{ID: last.ID, Author: last.Author, TS: last.TS}
	}
	hub.Publish(TopicLatest(ref), meta)
}

// TopicMessages is the snapshot topic carrying the full message list of a
// stream ([]models.Message).
func TopicMessages(ref StreamRef) string {
	return string(ref.Kind) + ":" + ref.ID + ":messages"
}

// TopicLatest is the snapshot topic carrying models.LatestMeta for a stream.
func TopicLatest(ref StreamRef) string {
	return string(ref.Kind) + ":" + ref.ID + ":latest"
}

// WatchMessages subscribes to full message-list snapshots for a stream.
func WatchMessages(ref StreamRef) *stream.Sub {
	return hub.Subscribe(TopicMessages(ref))
}

// WatchLatest subscribes to latest-message metadata snapshots for a stream.
func WatchLatest(ref StreamRef) *stream.Sub {
	return hub.Subscribe(TopicLatest(ref))
}

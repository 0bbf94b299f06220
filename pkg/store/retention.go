package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"huddle/pkg/logger"
	"huddle/pkg/models"
)

// PurgeMessagesBefore deletes messages with a timestamp older than cutoff
// across every channel and DM stream, in batches. Affected streams get a
// fresh snapshot publish afterwards. With dryRun set, it only counts.
func PurgeMessagesBefore(cutoff int64, batchSize int, dryRun bool) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("pebble not opened; call store.Open first")
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	type victim struct {
		key string
		id  string
		ref StreamRef
	}
	var victims []victim
	for _, prefix := range []string{string(ChannelStream) + ":", string(DMStream) + ":"} {
		iter, err := db.NewIter(&pebble.IterOptions{
			LowerBound: []byte(prefix),
			UpperBound: keyUpperBound([]byte(prefix)),
		})
		if err != nil {
			return 0, err
		}
		for iter.First(); iter.Valid(); iter.Next() {
			key := string(iter.Key())
			if !bytes.Contains(iter.Key(), []byte(":msg:")) {
				continue
			}
			var m models.Message
			if err := json.Unmarshal(iter.Value(), &m); err != nil {
				continue
			}
			if m.TS >= cutoff || m.Pinned {
				continue
			}
			if ref, ok := RefOfKey(key); ok {
				victims = append(victims, victim{key: key, id: m.ID, ref: ref})
			}
		}
		if err := iter.Error(); err != nil {
			_ = iter.Close()
			return 0, err
		}
		_ = iter.Close()
	}

	if dryRun {
		logger.Info("purge_dry_run", "candidates", len(victims))
		return len(victims), nil
	}

	affected := map[StreamRef]struct{}{}
	deleted := 0
	for start := 0; start < len(victims); start += batchSize {
		end := start + batchSize
		if end > len(victims) {
			end = len(victims)
		}
		b := db.NewBatch()
		for _, v := range victims[start:end] {
			if err := b.Delete([]byte(v.key), nil); err != nil {
				_ = b.Close()
				return deleted, err
			}
			if err := b.Delete([]byte("msgid:"+v.id), nil); err != nil {
				_ = b.Close()
				return deleted, err
			}
			affected[v.ref] = struct{}{}
		}
		if err := b.Commit(pebble.Sync); err != nil {
			_ = b.Close()
			return deleted, err
		}
		_ = b.Close()
		deleted += end - start
	}

	for ref := range affected {
		publishStream(ref)
	}
	logger.Info("purge_complete", "deleted", deleted, "streams", len(affected))
	return deleted, nil
}

// PurgeOrphanDMCursors removes DM read cursors whose thread no longer has
// any messages. Channel cursors are kept; channels are config, not data.
func PurgeOrphanDMCursors(dryRun bool) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("pebble not opened; call store.Open first")
	}
	keys, err := ListKeys("user:")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		idx := bytes.Index([]byte(key), []byte(":lastreaddm:"))
		if idx < 0 {
			continue
		}
		thread := key[idx+len(":lastreaddm:"):]
		msgs, err := ListMessages(DM(thread), 1)
		if err != nil || len(msgs) > 0 {
			continue
		}
		if dryRun {
			removed++
			continue
		}
		if err := db.Delete([]byte(key), pebble.Sync); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

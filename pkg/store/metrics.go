package store

import (
	"io/fs"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

var messagesSaved = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "huddle_messages_saved_total",
	Help: "Messages appended to streams.",
}, []string{"kind"})

var cursorWrites = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "huddle_cursor_writes_total",
	Help: "Read-cursor upserts.",
})

func init() {
	prometheus.MustRegister(messagesSaved, cursorWrites)
}

// DBSizeBytes returns the best-effort on-disk size of the store directory.
func DBSizeBytes() uint64 {
	if dbPath == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += uint64(fi.Size())
		return nil
	})
	return total
}

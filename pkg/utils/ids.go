package utils

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenMsgID returns a process-unique message id. The nanosecond timestamp
// plus a counter keeps ids unique even when many messages land in the same
// nanosecond.
func GenMsgID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}

// GenReportID returns a process-unique moderation report id.
func GenReportID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("report-%d-%d", n, s)
}

// DMThreadID returns the canonical thread id for a pair of users. The two
// ids are ordered so both participants derive the same thread.
func DMThreadID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "__" + b
}

// DMThreadHasParticipant reports whether uid is one of the two users a
// thread id was derived from.
func DMThreadHasParticipant(thread, uid string) bool {
	parts := strings.SplitN(thread, "__", 2)
	if len(parts) != 2 {
		return false
	}
	return parts[0] == uid || parts[1] == uid
}

package badges

import (
	"huddle/pkg/logger"
	"huddle/pkg/store"
)

// xpPerLevel is the flat amount of chat XP needed to advance one level.
const xpPerLevel = 100

// LevelForXP maps accumulated chat XP onto a level, starting at 1.
func LevelForXP(xp int) int {
	return 1 + xp/xpPerLevel
}

// AwardChatXP credits a user for one sent message and recomputes the chat
// level. It is called fire-and-forget from the send path: a failure is
// logged and dropped, it never blocks or rolls back the message.
func AwardChatXP(uid string, amount int) {
	if uid == "" || amount <= 0 {
		return
	}
	u, err := store.GetUser(uid)
	if err != nil {
		logger.Warn("xp_award_load_failed", "user", uid, "error", err)
		return
	}
	u.ChatXP += amount
	if lvl := LevelForXP(u.ChatXP); lvl > u.ChatLevel {
		u.ChatLevel = lvl
		logger.Info("chat_level_up", "user", uid, "level", lvl)
	}
	if err := store.SaveUser(u); err != nil {
		logger.Warn("xp_award_save_failed", "user", uid, "error", err)
	}
}

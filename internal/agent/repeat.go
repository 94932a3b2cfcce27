package agent

import (
	"math/rand/v2"
	"slices"

	"github.com/easeaico/storefront-cs/internal/types"
	"github.com/easeaico/storefront-cs/internal/utils"
)

func isRecent(user types.UserState, text string) bool {
	hash := utils.ReplyHash(text)
	return hash != "" && user.HasReplyHash(hash)
}

// pickContinuation returns a random pool line the user has not seen
// recently. When every line is recent it returns the least recently used
// one. The avoided replies and the newest reply are never returned; an empty
// result means no line qualifies.
func pickContinuation(pool []string, user types.UserState, avoid ...string) string {
	banned := map[string]bool{}
	for _, text := range avoid {
		if h := utils.ReplyHash(text); h != "" {
			banned[h] = true
		}
	}
	if n := len(user.RecentReplyHashes); n > 0 {
		banned[user.RecentReplyHashes[n-1]] = true
	}

	var fresh []string
	oldest, oldestAt := "", len(user.RecentReplyHashes)
	for _, line := range pool {
		hash := utils.ReplyHash(line)
		if hash == "" || banned[hash] {
			continue
		}
		at := slices.Index(user.RecentReplyHashes, hash)
		if at < 0 {
			fresh = append(fresh, line)
			continue
		}
		if at < oldestAt {
			oldest, oldestAt = line, at
		}
	}
	if len(fresh) > 0 {
		return fresh[rand.IntN(len(fresh))]
	}
	return oldest
}

// pickVariant returns the first answer the user has not recently received.
func pickVariant(answers []string, user types.UserState) (int, bool) {
	for i, answer := range answers {
		if !isRecent(user, answer) {
			return i, true
		}
	}
	return -1, false
}

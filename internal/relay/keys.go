package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// Store key namespace. The prefixes are part of the persisted contract: a
// redeployed instance must find the records of its predecessor.
const (
	conversationPrefix = "user:"
	banPrefix          = "banned:"
	verifiedPrefix     = "verified:"
	challengePrefix    = "chal:"
	mediaGroupPrefix   = "mg:"
)

func conversationKey(userID int64) string {
	return conversationPrefix + strconv.FormatInt(userID, 10)
}

func userIDFromConversationKey(key string) (int64, bool) {
	raw, ok := strings.CutPrefix(key, conversationPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func banKey(userID int64) string {
	return banPrefix + strconv.FormatInt(userID, 10)
}

func verifiedKey(userID int64) string {
	return verifiedPrefix + strconv.FormatInt(userID, 10)
}

func challengeKey(token string) string {
	return challengePrefix + token
}

func mediaGroupKey(direction, groupID string) string {
	return fmt.Sprintf("%s%s:%s", mediaGroupPrefix, direction, groupID)
}

package guard

import (
	"log/slog"
	"strings"
)

// AuthPolicy is the centralized channel authorization policy shared across
// every inbound channel (Telegram, Discord, Slack, ...): a DM policy plus
// sender and group allowlists.
type AuthPolicy struct {
	// DMPolicy is one of "open" (allow all), "allowlist" (check
	// DMAllowlist), or "pairing" (require a pairing flow — always denied
	// here, since pairing state lives elsewhere).
	DMPolicy     string
	DMAllowlist  []string
	GroupAllowlist []string
}

// IsDMAuthorized reports whether senderID may open a direct message.
func (p AuthPolicy) IsDMAuthorized(senderID string) bool {
	switch p.DMPolicy {
	case "open":
		return true
	case "allowlist":
		for _, id := range p.DMAllowlist {
			if id == senderID {
				return true
			}
		}
		return false
	default:
		// "pairing" or unrecognized policy denies until a pairing flow
		// elsewhere grants access explicitly.
		return false
	}
}

// IsGroupAuthorized reports whether groupID may receive messages. An empty
// GroupAllowlist means every group is allowed.
func (p AuthPolicy) IsGroupAuthorized(groupID string) bool {
	if len(p.GroupAllowlist) == 0 {
		return true
	}
	for _, id := range p.GroupAllowlist {
		if id == groupID {
			return true
		}
	}
	return false
}

// AuthorizeEvent applies the DM/group split used across channels: chat IDs
// that start with "-" are treated as group chats (the Telegram convention
// this policy was generalized from), everything else as a DM.
func (p AuthPolicy) AuthorizeEvent(log *slog.Logger, senderID, chatID, eventType, channelName string) bool {
	if chatID != "" && !strings.HasPrefix(chatID, "-") {
		if !p.IsDMAuthorized(senderID) {
			if log != nil {
				log.Debug("event blocked by dm_policy", "channel", channelName, "event", eventType, "sender", senderID)
			}
			return false
		}
	}
	if chatID != "" && strings.HasPrefix(chatID, "-") {
		if !p.IsGroupAuthorized(chatID) {
			if log != nil {
				log.Debug("event blocked by group_allowlist", "channel", channelName, "event", eventType, "chat", chatID)
			}
			return false
		}
	}
	return true
}

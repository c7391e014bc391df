package guard

// TurnSourceMetadata pins a reply to its originating channel/target so
// mutable session metadata can't be used to redirect a reply to an
// unintended channel mid-conversation.
type TurnSourceMetadata struct {
	Channel   string
	To        string
	AccountID string
	ThreadID  string
}

func firstNonEmpty(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

// ResolveOriginMessageProvider returns the turn-source channel if set,
// otherwise the session's channel.
func ResolveOriginMessageProvider(ts TurnSourceMetadata, sessionChannel string) string {
	return firstNonEmpty(ts.Channel, sessionChannel)
}

// ResolveOriginTo returns the turn-source target if set, otherwise the
// session's target.
func ResolveOriginTo(ts TurnSourceMetadata, sessionTo string) string {
	return firstNonEmpty(ts.To, sessionTo)
}

// ResolveOriginAccountID returns the turn-source account ID if set,
// otherwise the session's account ID.
func ResolveOriginAccountID(ts TurnSourceMetadata, sessionAccountID string) string {
	return firstNonEmpty(ts.AccountID, sessionAccountID)
}

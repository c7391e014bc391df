package session

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	oasis "github.com/nevindra/clawgate"
)

// credentialPatterns matches common secret shapes that should never survive
// a session fork: provider API keys, bearer tokens, AWS access keys, and
// generic "key=value"/"key: value" assignments whose key name looks
// credential-shaped. Patterns are intentionally broad — a false-positive
// redaction is cheap, a leaked key is not.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),                 // OpenAI-style secret keys
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{16,}`),              // Anthropic-style secret keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{12,}`),       // Authorization: Bearer <token>
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                       // AWS access key ID
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),                    // GitHub personal access token
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`), // JWT
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password|passwd)\s*[:=]\s*["']?[A-Za-z0-9._~+/=-]{8,}["']?`),
}

// zeroWidthStripper removes the same obfuscation characters the injection
// guards normalize away, so a redaction pass can't be dodged by splitting a
// key across zero-width joiners.
var zeroWidthStripper = strings.NewReplacer(
	"​", "",
	"‌", "",
	"‍", "",
	"﻿", "",
	"⁠", "",
	"᠎", "",
	"­", "",
)

const redactedPlaceholder = "[redacted]"

// RedactCredentials scans content for credential-shaped substrings and
// replaces each match with a placeholder. The scan runs against a
// zero-width-stripped, NFKC-normalized copy so obfuscated secrets are still
// caught, but the placeholder is substituted into the original string's
// byte positions are not preserved — callers get back the cleaned string.
func RedactCredentials(content string) string {
	cleaned := zeroWidthStripper.Replace(content)
	cleaned = norm.NFKC.String(cleaned)
	for _, pattern := range credentialPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, redactedPlaceholder)
	}
	return cleaned
}

// internalMetadataKeys are provider/channel-internal fields that must never
// cross into a forked session (a sub-agent, a plugin call, a logged
// transcript): they either carry raw provider state (thought signatures,
// cache handles) or routing internals (origin channel tokens) that have no
// meaning, and represent a leak surface, outside the originating session.
var internalMetadataKeys = []string{
	"thoughtSignature",
	"cacheHandle",
	"originToken",
	"channelSecret",
	"rawProviderState",
}

// StripInboundMetadata returns a copy of msg with internal metadata keys
// removed from its Metadata blob and credential-shaped substrings redacted
// from its Content. It does not mutate msg.
func StripInboundMetadata(msg oasis.ChatMessage) oasis.ChatMessage {
	out := msg
	out.Content = RedactCredentials(msg.Content)
	out.Metadata = stripMetadataKeys(msg.Metadata, internalMetadataKeys)
	return out
}

// RedactMessage is the fork boundary's full treatment of one message:
// credential redaction plus internal metadata stripping.
func RedactMessage(msg oasis.ChatMessage) oasis.ChatMessage {
	return StripInboundMetadata(msg)
}

package types

import (
	"encoding/json"
	"time"
)

// Conversation log event types.
const (
	EventUserMessage    = "user_message"
	EventMediaAttempt   = "media_attempt"
	EventMediaResult    = "media_result"
	EventAssistantReply = "assistant_reply"
)

// LogRecord is one line of a session's conversation log.
type LogRecord struct {
	Timestamp   string          `json:"timestamp"`
	SessionID   string          `json:"session_id"`
	UserIDHash  string          `json:"user_id_hash"`
	EventType   string          `json:"event_type"`
	ReplySource string          `json:"reply_source,omitempty"`
	RuleID      string          `json:"rule_id,omitempty"`
	ModelName   string          `json:"model_name,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// LogTimeLayout is the timestamp layout written to the log.
const LogTimeLayout = time.RFC3339

// Time parses the record timestamp. RFC3339 and zone-less ISO-8601 values
// (read as local time) are accepted; anything else yields the zero time.
func (r LogRecord) Time() time.Time {
	if t, err := time.Parse(time.RFC3339Nano, r.Timestamp); err == nil {
		return t
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, r.Timestamp, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// UserMessagePayload is the payload of EventUserMessage.
type UserMessagePayload struct {
	Text string `json:"text"`
}

// MediaAttemptPayload is the payload of EventMediaAttempt.
type MediaAttemptPayload struct {
	Type        MediaPlan `json:"type"`
	Path        string    `json:"path"`
	TargetStore string    `json:"target_store,omitempty"`
}

// MediaResultPayload is the payload of EventMediaResult. Result is whatever
// the delivery channel reported and is kept verbatim.
type MediaResultPayload struct {
	Type    MediaPlan       `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// AssistantReplyPayload is the payload of EventAssistantReply.
type AssistantReplyPayload struct {
	Text                string      `json:"text"`
	RoundMediaSentTypes []MediaPlan `json:"round_media_sent_types"`
}

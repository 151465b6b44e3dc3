package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one exchange unit in the session transcript.
// The transcript is append-only and lives only for the session.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelKind identifies one extraction input modality.
type ChannelKind string

const (
	ChannelText     ChannelKind = "text"
	ChannelVoice    ChannelKind = "voice"
	ChannelDocument ChannelKind = "document"
)

// ChannelStatus is the connection state of one extraction channel.
type ChannelStatus string

const (
	ChannelIdle       ChannelStatus = "idle"
	ChannelConnecting ChannelStatus = "connecting"
	ChannelActive     ChannelStatus = "active"
	ChannelSpeaking   ChannelStatus = "speaking"
	ChannelListening  ChannelStatus = "listening"
	ChannelError      ChannelStatus = "error"
)

package domain

type (
	ChannelID string
	ServerID  string
)

// ChannelType discriminates text channels (chat history, out of scope here)
// from voice channels hosted by the SFU.
type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

// Channel is owned by the platform's persistence layer. The voice core only
// reads it to validate membership and type; it never mutates it.
type Channel struct {
	ID       ChannelID   `json:"id"`
	ServerID ServerID    `json:"serverId"`
	Type     ChannelType `json:"type"`
}

func (c *Channel) IsVoice() bool { return c.Type == ChannelVoice }

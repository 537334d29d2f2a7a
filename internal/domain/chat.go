package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a conversation transcript.
// Content of an assistant message grows while its turn is streaming and is
// left untouched afterwards.
type ChatMessage struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"createdAt"`
	Meta      *MessageMeta `json:"meta,omitempty"`
}

// MessageMeta records how an assistant message was grounded
type MessageMeta struct {
	RAGEnabled bool        `json:"ragEnabled"`
	RAGSources []RAGSource `json:"ragSources,omitempty"`
}

// RAGSource is the provenance of one rendered retrieval section
type RAGSource struct {
	Title SourceTitle `json:"title"`
	Count int         `json:"count"`
}

// NewMessage creates a message with a fresh id and timestamp
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// WireMessage is the role/content pair sent to the inference backend
type WireMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// OutgoingRequest is the chat request body forwarded to the inference backend
type OutgoingRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []WireMessage `json:"messages"`
}

// Attachment is an uploaded file already read to text
type Attachment struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Conversation is the explicit per-user transcript state. The caller owns it
// and persists it between turns.
type Conversation struct {
	Model       string        `json:"model"`
	IncludeRAG  bool          `json:"includeRag"`
	Messages    []ChatMessage `json:"messages"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// Append adds a message and returns its index
func (c *Conversation) Append(m ChatMessage) int {
	c.Messages = append(c.Messages, m)
	return len(c.Messages) - 1
}

// AddAttachments appends attachments in upload order
func (c *Conversation) AddAttachments(items ...Attachment) {
	c.Attachments = append(c.Attachments, items...)
}

// Clear drops all messages and attachments
func (c *Conversation) Clear() {
	c.Messages = nil
	c.Attachments = nil
}

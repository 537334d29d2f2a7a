// Package transcript assembles the bounded message list sent upstream for a
// chat turn. It performs no I/O.
package transcript

import (
	"strings"

	"github.com/liliang-cn/noise/internal/domain"
)

const (
	// SystemPrompt is always the first outgoing message
	SystemPrompt = "You are a helpful assistant. Use CONTEXT when it is relevant. " +
		"If CONTEXT is irrelevant, ignore it. Keep responses concise unless asked for detail."

	// TruncationMarker is appended to any text cut by ClampText
	TruncationMarker = "\n\n[...truncated...]"

	DefaultHistoryWindow   = 12
	DefaultAttachmentLimit = 8000
)

// ClampText cuts s to max characters and appends TruncationMarker when it was
// longer. Characters are Unicode code points.
func ClampText(s string, max int) string {
	if max < 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// NewAttachment builds an attachment capped at DefaultAttachmentLimit
func NewAttachment(name, text string) domain.Attachment {
	return NewAttachmentLimit(name, text, DefaultAttachmentLimit)
}

// NewAttachmentLimit builds an attachment capped at limit characters
func NewAttachmentLimit(name, text string, limit int) domain.Attachment {
	return domain.Attachment{Name: name, Text: ClampText(text, limit)}
}

// Builder holds the knobs of the assembler
type Builder struct {
	SystemPrompt  string
	HistoryWindow int
}

// NewBuilder returns a Builder with the default prompt and window
func NewBuilder() *Builder {
	return &Builder{SystemPrompt: SystemPrompt, HistoryWindow: DefaultHistoryWindow}
}

// BuildOutgoing builds the streaming request for one turn. history holds the
// messages that precede the new user input.
func (b *Builder) BuildOutgoing(model string, history []domain.ChatMessage, input string, block domain.ContextBlock, attachments []domain.Attachment) domain.OutgoingRequest {
	window := History(history, b.HistoryWindow)

	messages := make([]domain.WireMessage, 0, len(window)+2)
	messages = append(messages, domain.WireMessage{Role: domain.RoleSystem, Content: b.SystemPrompt})
	messages = append(messages, window...)
	messages = append(messages, domain.WireMessage{
		Role:    domain.RoleUser,
		Content: input + ContextSection(block) + AttachmentSection(attachments),
	})

	return domain.OutgoingRequest{
		Model:    model,
		Stream:   true,
		Messages: messages,
	}
}

// BuildOutgoing uses the default Builder
func BuildOutgoing(model string, history []domain.ChatMessage, input string, block domain.ContextBlock, attachments []domain.Attachment) domain.OutgoingRequest {
	return NewBuilder().BuildOutgoing(model, history, input, block, attachments)
}

// History returns the last n messages reduced to role and content
func History(messages []domain.ChatMessage, n int) []domain.WireMessage {
	if n < 0 {
		n = 0
	}
	start := len(messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.WireMessage, 0, len(messages)-start)
	for _, m := range messages[start:] {
		out = append(out, domain.WireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// ContextSection renders the retrieval context, or "" when there is none
func ContextSection(block domain.ContextBlock) string {
	if block.Empty() {
		return ""
	}
	return "\n\nCONTEXT (from knowledge base):\n" + block.Text
}

// AttachmentSection renders attachments as titled blocks in upload order, or ""
func AttachmentSection(attachments []domain.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}
	blocks := make([]string, len(attachments))
	for i, a := range attachments {
		blocks[i] = "--- " + a.Name + " ---\n" + a.Text
	}
	return "\n\nATTACHMENTS:\n" + strings.Join(blocks, "\n\n")
}

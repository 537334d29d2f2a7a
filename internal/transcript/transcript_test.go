package transcript

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/noise/internal/domain"
)

func TestClampText(t *testing.T) {
	require.Equal(t, "abc", ClampText("abc", 3))
	require.Equal(t, "ab"+TruncationMarker, ClampText("abc", 2))
	require.Equal(t, "", ClampText("", 0))
	require.Equal(t, TruncationMarker, ClampText("x", 0))

	// code points, not bytes
	require.Equal(t, "世界", ClampText("世界", 2))
	require.Equal(t, "世"+TruncationMarker, ClampText("世界", 1))
}

func TestNewAttachment_Truncates9000To8000(t *testing.T) {
	text := strings.Repeat("a", 9000)
	a := NewAttachment("big.txt", text)

	require.Equal(t, "big.txt", a.Name)
	require.Equal(t, strings.Repeat("a", 8000)+TruncationMarker, a.Text)
}

func TestNewAttachment_KeepsShortText(t *testing.T) {
	text := strings.Repeat("a", 8000)
	require.Equal(t, text, NewAttachment("ok.txt", text).Text)
}

func history(n int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, n)
	for i := range out {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		out[i] = domain.ChatMessage{
			ID:      fmt.Sprintf("m%d", i),
			Role:    role,
			Content: fmt.Sprintf("msg %d", i),
			Meta:    &domain.MessageMeta{RAGEnabled: true},
		}
	}
	return out
}

func TestBuildOutgoing_SystemHistoryAndUser(t *testing.T) {
	req := BuildOutgoing("llama3", history(20), "question", domain.ContextBlock{}, nil)

	require.Equal(t, "llama3", req.Model)
	require.True(t, req.Stream)
	require.Len(t, req.Messages, 1+12+1)

	require.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	require.Equal(t, SystemPrompt, req.Messages[0].Content)

	for i := 0; i < 12; i++ {
		require.Equal(t, fmt.Sprintf("msg %d", 8+i), req.Messages[1+i].Content)
	}

	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, domain.RoleUser, last.Role)
	require.Equal(t, "question", last.Content)
}

func TestBuildOutgoing_ShortHistory(t *testing.T) {
	req := BuildOutgoing("m", history(3), "q", domain.ContextBlock{}, nil)
	require.Len(t, req.Messages, 5)
	require.Equal(t, domain.RoleAssistant, req.Messages[2].Role)
}

func TestBuildOutgoing_ContextAndAttachments(t *testing.T) {
	block := domain.ContextBlock{Text: "### Graph\n- A\n- B"}
	atts := []domain.Attachment{
		NewAttachment("a.txt", "alpha"),
		NewAttachment("b.md", "beta"),
	}

	req := BuildOutgoing("m", nil, "hi", block, atts)
	want := "hi" +
		"\n\nCONTEXT (from knowledge base):\n### Graph\n- A\n- B" +
		"\n\nATTACHMENTS:\n--- a.txt ---\nalpha\n\n--- b.md ---\nbeta"

	require.Len(t, req.Messages, 2)
	require.Equal(t, want, req.Messages[1].Content)
}

func TestBuildOutgoing_OnlyAttachments(t *testing.T) {
	req := BuildOutgoing("m", nil, "hi", domain.ContextBlock{}, []domain.Attachment{{Name: "x", Text: "y"}})
	require.Equal(t, "hi\n\nATTACHMENTS:\n--- x ---\ny", req.Messages[1].Content)
}

func TestBuilder_CustomWindow(t *testing.T) {
	b := &Builder{SystemPrompt: "sys", HistoryWindow: 2}
	req := b.BuildOutgoing("m", history(5), "q", domain.ContextBlock{}, nil)

	require.Len(t, req.Messages, 4)
	require.Equal(t, "sys", req.Messages[0].Content)
	require.Equal(t, "msg 3", req.Messages[1].Content)
	require.Equal(t, "msg 4", req.Messages[2].Content)
}

func TestEstimateTokens(t *testing.T) {
	req := BuildOutgoing("m", nil, "hello world", domain.ContextBlock{}, nil)
	n, err := EstimateTokens(req)
	require.NoError(t, err)
	require.Greater(t, n, 2)
}

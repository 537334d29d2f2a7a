package transcript

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/liliang-cn/noise/internal/domain"
)

// EstimateTokens counts cl100k tokens over every message content of req
func EstimateTokens(req domain.OutgoingRequest) (int, error) {
	enc, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return 0, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	total := 0
	for _, m := range req.Messages {
		ids, _, err := enc.Encode(m.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s message: %w", m.Role, err)
		}
		total += len(ids)
	}
	return total, nil
}

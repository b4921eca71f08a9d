package sessionrag

import (
	"context"
	"fmt"
	"strings"

	"openclaw/internal/llm"
	"openclaw/internal/logging"
	"openclaw/internal/types"
)

// Contextualizer generates a short situating prefix for each chunk so
// retrieval sees "what this excerpt is about" alongside the raw text.
type Contextualizer struct {
	router *llm.Router
	logger logging.Logger
}

// NewContextualizer creates a contextualizer over the model router. A nil
// router disables contextualisation; chunks then embed raw.
func NewContextualizer(router *llm.Router, logger logging.Logger) *Contextualizer {
	return &Contextualizer{router: router, logger: logging.OrNop(logger)}
}

const contextPrompt = `This excerpt is from a conversation between an operator and their assistant. In at most 50 words, state what topic the excerpt covers and what was concluded or asked, so the excerpt can be located by search. Respond with the description only.`

// Contextualize returns the prefix and the resulting context status.
// Router failures degrade: the chunk keeps working without a prefix and
// the status records the failure for later backfill.
func (c *Contextualizer) Contextualize(ctx context.Context, sessionID string, chunk *Chunk) (string, types.ContextStatus) {
	if c.router == nil {
		return "", types.ContextPending
	}

	res, err := c.router.Complete(ctx, llm.RouteRequest{
		Type:      llm.TaskSummarize,
		Prompt:    contextPrompt,
		Content:   chunk.Content,
		SessionID: sessionID,
		Source:    "session_indexer",
	})
	if err != nil {
		c.logger.Warn("contextualisation failed for %s chunk %d: %v", sessionID, chunk.Index, err)
		return "", types.ContextFailed
	}

	prefix := strings.TrimSpace(res.Text)
	if prefix == "" {
		return "", types.ContextFailed
	}
	return prefix, types.ContextComplete
}

// EmbedText is what actually gets embedded: the situating prefix (when
// present) above the raw content.
func EmbedText(prefix, content string) string {
	if prefix == "" {
		return content
	}
	return fmt.Sprintf("%s\n\n%s", prefix, content)
}

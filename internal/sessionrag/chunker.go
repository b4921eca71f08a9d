package sessionrag

import (
	"strings"
	"time"
)

// Chunk is one indexable slice of a session.
type Chunk struct {
	Index       int
	Content     string
	Timestamp   time.Time
	Speakers    []string
	TopicTags   []string
	HasDecision bool
	HasAction   bool
	TokenCount  int
}

const (
	// maxChunkTokens is the estimated-token ceiling per chunk.
	maxChunkTokens = 500
	// overlapChars is carried from the tail of one oversize split into
	// the next so sentence boundaries stay searchable.
	overlapChars = 200
	// maxChunksPerSession caps pathological transcripts.
	maxChunksPerSession = 2000
)

// EstimateTokens approximates token count as len/4. Rough but dependency
// free, and consistent everywhere chunk budgets are enforced.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ChunkMessages groups messages into exchange-based chunks: a user turn
// and the assistant turns that answer it stay together when they fit.
// Assistant messages before the first user turn have no exchange to
// belong to and are dropped, so a transcript with no user turns yields
// no chunks. Oversize exchanges are split on paragraphs, then sentences,
// with a 200-character overlap between splits.
func ChunkMessages(messages []Message) []Chunk {
	var chunks []Chunk
	var buf strings.Builder
	var bufTimestamp time.Time
	inExchange := false
	speakers := make(map[string]bool)

	flush := func() {
		content := strings.TrimSpace(buf.String())
		if content == "" {
			return
		}
		for _, part := range splitOversize(content) {
			if len(chunks) >= maxChunksPerSession {
				return
			}
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				Content:    part,
				Timestamp:  bufTimestamp,
				Speakers:   speakerList(speakers),
				TokenCount: EstimateTokens(part),
			})
		}
		buf.Reset()
		speakers = make(map[string]bool)
		bufTimestamp = time.Time{}
	}

	for _, msg := range messages {
		if len(chunks) >= maxChunksPerSession {
			break
		}
		if msg.Role == "user" {
			inExchange = true
		}
		if !inExchange {
			continue
		}
		rendered := speakerLabel(msg.Role) + ": " + msg.Content

		// A new user turn starts a new exchange once the buffer holds a
		// previous one, or when adding would blow the budget.
		startsExchange := msg.Role == "user" && buf.Len() > 0
		overBudget := EstimateTokens(buf.String())+EstimateTokens(rendered) > maxChunkTokens
		if startsExchange || (overBudget && buf.Len() > 0) {
			flush()
		}

		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(rendered)
		speakers[msg.Role] = true
		if bufTimestamp.IsZero() && !msg.Timestamp.IsZero() {
			bufTimestamp = msg.Timestamp
		}
	}
	flush()

	for i := range chunks {
		annotate(&chunks[i])
	}
	return chunks
}

// speakerLabel renders the role for chunk content; the Speakers metadata
// keeps the raw role names.
func speakerLabel(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	}
	return role
}

func speakerList(set map[string]bool) []string {
	var out []string
	for _, role := range []string{"user", "assistant"} {
		if set[role] {
			out = append(out, role)
		}
	}
	return out
}

// splitOversize breaks content that exceeds the token budget. Paragraph
// boundaries are preferred, then sentences; a hard character split is the
// last resort. Each continuation carries the previous split's overlap.
func splitOversize(content string) []string {
	if EstimateTokens(content) <= maxChunkTokens {
		return []string{content}
	}

	units := strings.Split(content, "\n\n")
	if len(units) == 1 {
		units = splitSentences(content)
	}

	var parts []string
	var buf strings.Builder
	for _, unit := range units {
		if EstimateTokens(unit) > maxChunkTokens {
			// A single unit larger than the budget gets hard-split.
			if buf.Len() > 0 {
				parts = append(parts, strings.TrimSpace(buf.String()))
				buf.Reset()
			}
			parts = append(parts, hardSplit(unit)...)
			continue
		}
		if buf.Len() > 0 && EstimateTokens(buf.String())+EstimateTokens(unit) > maxChunkTokens {
			part := strings.TrimSpace(buf.String())
			parts = append(parts, part)
			buf.Reset()
			buf.WriteString(overlapTail(part))
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(unit)
	}
	if strings.TrimSpace(buf.String()) != "" {
		parts = append(parts, strings.TrimSpace(buf.String()))
	}
	return parts
}

// overlapTail returns the last sentences of text up to overlapChars.
func overlapTail(text string) string {
	if len(text) <= overlapChars {
		return text
	}
	tail := text[len(text)-overlapChars:]
	// Start at a sentence boundary inside the window when one exists.
	if idx := strings.IndexAny(tail, ".!?"); idx >= 0 && idx+1 < len(tail) {
		return strings.TrimSpace(tail[idx+1:])
	}
	return strings.TrimSpace(tail)
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

func hardSplit(text string) []string {
	limit := maxChunkTokens * 4
	var parts []string
	for len(text) > limit {
		parts = append(parts, text[:limit])
		text = text[limit-overlapChars:]
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, text)
	}
	return parts
}

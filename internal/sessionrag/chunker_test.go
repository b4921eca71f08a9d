package sessionrag

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkKeepsExchangeTogether(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "what should I cook tonight"},
		{Role: "assistant", Content: "something quick with what's in the fridge"},
		{Role: "user", Content: "now a different topic entirely"},
		{Role: "assistant", Content: "sure, go ahead"},
	}
	chunks := ChunkMessages(msgs)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "cook tonight")
	assert.Contains(t, chunks[0].Content, "fridge")
	assert.Contains(t, chunks[1].Content, "different topic")
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestChunkAssistantOnlyYieldsNothing(t *testing.T) {
	chunks := ChunkMessages([]Message{
		{Role: "assistant", Content: "unsolicited assistant monologue"},
		{Role: "assistant", Content: "more assistant text"},
	})
	assert.Empty(t, chunks)
}

func TestChunkDropsLeadingAssistantMessages(t *testing.T) {
	chunks := ChunkMessages([]Message{
		{Role: "assistant", Content: "orphan greeting before anyone asked"},
		{Role: "user", Content: "what should I cook tonight"},
		{Role: "assistant", Content: "something quick"},
	})
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Content, "orphan greeting")
	assert.Contains(t, chunks[0].Content, "cook tonight")
}

func TestChunkContentLabels(t *testing.T) {
	chunks := ChunkMessages([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, "User: hello\n\nAssistant: hi", chunks[0].Content)
}

func TestChunkSpeakers(t *testing.T) {
	chunks := ChunkMessages([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"user", "assistant"}, chunks[0].Speakers)
}

func TestChunkOversizeSplitsWithOverlap(t *testing.T) {
	// One exchange far above the budget built from many sentences.
	var sb strings.Builder
	for i := 0; i < 300; i++ {
		sb.WriteString("This sentence pads the exchange well past the token budget. ")
	}
	chunks := ChunkMessages([]Message{
		{Role: "user", Content: "summarize this"},
		{Role: "assistant", Content: sb.String()},
	})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, maxChunkTokens+overlapChars/4,
			"chunk %d exceeds budget", c.Index)
	}
}

func TestChunkCap(t *testing.T) {
	msgs := make([]Message, 0, 3000)
	for i := 0; i < 3000; i++ {
		msgs = append(msgs,
			Message{Role: "user", Content: strings.Repeat("question text ", 20)},
			Message{Role: "assistant", Content: strings.Repeat("answer text ", 20)})
	}
	chunks := ChunkMessages(msgs)
	assert.LessOrEqual(t, len(chunks), maxChunksPerSession)
}

func TestChunkTimestampFromFirstMessage(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	chunks := ChunkMessages([]Message{
		{Role: "user", Content: "hello", Timestamp: ts},
		{Role: "assistant", Content: "hi", Timestamp: ts.Add(time.Minute)},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, ts, chunks[0].Timestamp)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestAnnotateDecisionAndAction(t *testing.T) {
	chunks := ChunkMessages([]Message{
		{Role: "user", Content: "which database should we use"},
		{Role: "assistant", Content: "We decided to go with sqlite. I'll set up the schema tomorrow."},
	})
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].HasDecision)
	assert.True(t, chunks[0].HasAction)
}

func TestAnnotateNeutralContent(t *testing.T) {
	chunks := ChunkMessages([]Message{
		{Role: "user", Content: "nice weather today"},
		{Role: "assistant", Content: "indeed, very sunny outside"},
	})
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].HasDecision)
}

func TestTopicTags(t *testing.T) {
	tags := topicTags(
		"climbing climbing climbing gyms gyms berlin the and for a of 123 self-hosted", 3)
	require.Len(t, tags, 3)
	assert.Equal(t, "climbing", tags[0])
	assert.Contains(t, tags, "gyms")
	// Hyphens become underscores, numerics and short words are excluded.
	assert.NotContains(t, tags, "123")
	for _, tag := range tags {
		assert.NotContains(t, tag, "-")
	}
}

// Package sessionrag indexes conversation transcripts into searchable,
// contextualised, embedded chunks: validate, chunk by exchange,
// contextualise, embed, store, with hash-based incremental re-indexing
// and vector, keyword, and RRF hybrid search over the result.
package sessionrag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"openclaw/internal/clawerr"
)

// Message is one transcript turn.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Transcript is a parsed session file.
type Transcript struct {
	SessionID string
	Path      string
	Messages  []Message
	Skipped   int // malformed lines dropped during parsing
}

// rawLine is the JSONL wire shape. Content is either a plain string or a
// list of typed parts; MessageContent absorbs both.
type rawLine struct {
	Type      string `json:"type"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Role    string         `json:"role"`
		Content MessageContent `json:"content"`
	} `json:"message"`
	Content MessageContent `json:"content"`
}

// MessageContent is a transcript content field that may be a string or an
// array of {type, text} parts. Non-text parts are dropped.
type MessageContent string

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MessageContent(s)
		return nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor part list")
	}
	var texts []string
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
	}
	*m = MessageContent(strings.Join(texts, "\n"))
	return nil
}

// quarantineThreshold is the default ceiling on malformed lines per file
// before the whole file is marked failed.
const defaultQuarantineThreshold = 20

// ParseFile reads a JSONL transcript. Malformed lines are skipped and
// counted; crossing the quarantine threshold fails the file so a corrupt
// transcript cannot poison the index line by line.
func ParseFile(path, sessionID string, quarantineThreshold int) (*Transcript, error) {
	if quarantineThreshold <= 0 {
		quarantineThreshold = defaultQuarantineThreshold
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "open transcript", Err: err}
	}
	defer f.Close()

	t := &Transcript{SessionID: sessionID, Path: path}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, err := parseLine(line)
		if err != nil {
			t.Skipped++
			if t.Skipped > quarantineThreshold {
				return nil, &clawerr.ParseError{
					File: path, Line: lineNo,
					Err: fmt.Errorf("quarantined after %d malformed lines", t.Skipped),
				}
			}
			continue
		}
		if msg != nil {
			t.Messages = append(t.Messages, *msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &clawerr.StorageError{Op: "read transcript", Err: err}
	}
	return t, nil
}

// parseLine decodes one JSONL record. Non-message records (summaries,
// tool results, system events) return nil without error.
func parseLine(line string) (*Message, error) {
	var raw rawLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, err
	}

	role := raw.Role
	content := string(raw.Content)
	if raw.Message != nil {
		if raw.Message.Role != "" {
			role = raw.Message.Role
		}
		if raw.Message.Content != "" {
			content = string(raw.Message.Content)
		}
	}

	switch role {
	case "user", "assistant":
	default:
		return nil, nil
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	msg := &Message{Role: role, Content: content}
	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			msg.Timestamp = ts
		}
	}
	return msg, nil
}

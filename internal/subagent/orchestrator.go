package subagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"openclaw/internal/activity"
	"openclaw/internal/clawerr"
	"openclaw/internal/logging"
	"openclaw/internal/store"
)

// maxTaskTokens is the estimated-token ceiling on an assembled task
// prompt. Oversize prompts are truncated from the task body, never from
// the persona or memories.
const maxTaskTokens = 5000

// maxMemories caps how many relevant memories are folded into a prompt.
const maxMemories = 3

// SpawnRequest is a fully assembled, ready-to-dispatch worker request.
type SpawnRequest struct {
	Task              string
	Model             string
	Label             string
	RunTimeoutSeconds int
	Cleanup           bool
}

// Orchestrator assembles spawn requests grounded in operator memory.
type Orchestrator struct {
	store    *store.Store
	activity *activity.Log
	logger   logging.Logger

	// Guidelines is operator-provided standing guidance appended to
	// every worker prompt.
	Guidelines string
}

// NewOrchestrator creates an orchestrator. The store may be nil in tests
// that do not exercise memory grounding.
func NewOrchestrator(s *store.Store, log *activity.Log, logger logging.Logger) *Orchestrator {
	return &Orchestrator{store: s, activity: log, logger: logging.OrNop(logger)}
}

func estimateTokens(text string) int { return len(text) / 4 }

// BuildSpawnRequest assembles a worker request: persona prompt, up to
// three memories relevant to the task (similarity >= 0.4), standing
// guidelines, and the task itself, truncated to the prompt budget.
func (o *Orchestrator) BuildSpawnRequest(ctx context.Context, role Role, task string) (*SpawnRequest, error) {
	if strings.TrimSpace(task) == "" {
		return nil, clawerr.NewValidation("task is required")
	}
	persona := GetPersona(role)

	var sections []string
	sections = append(sections, persona.SystemPrompt)

	if o.store != nil {
		matches, err := o.store.SemanticSearch(ctx, task, maxMemories)
		if err != nil {
			// Memory grounding is best-effort; spawn without it.
			o.logger.Warn("memory lookup for spawn failed: %v", err)
		} else if len(matches) > 0 {
			var mem strings.Builder
			mem.WriteString("Relevant operator context:")
			for _, m := range matches {
				mem.WriteString("\n- " + m.Content)
			}
			sections = append(sections, mem.String())
		}
	}

	if o.Guidelines != "" {
		sections = append(sections, "Standing guidelines:\n"+o.Guidelines)
	}

	header := strings.Join(sections, "\n\n") + "\n\nTask:\n"
	budget := (maxTaskTokens - estimateTokens(header)) * 4
	if budget < 0 {
		budget = 0
	}
	if len(task) > budget {
		task = task[:budget]
	}

	req := &SpawnRequest{
		Task:              header + task,
		Model:             persona.Model,
		Label:             fmt.Sprintf("%s-%s", role, uuid.NewString()[:8]),
		RunTimeoutSeconds: int(persona.RunTimeout.Seconds()),
		Cleanup:           true,
	}

	if o.activity != nil {
		o.activity.Tool(ctx, "spawn_agent", fmt.Sprintf("assembled %s worker", role),
			map[string]any{"label": req.Label, "model": req.Model,
				"timeout_s": req.RunTimeoutSeconds})
	}
	return req, nil
}

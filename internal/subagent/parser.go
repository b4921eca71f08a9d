package subagent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"openclaw/internal/clawerr"
	"openclaw/internal/pipeline"
)

// SpecOutput is the structured result extracted from a spec agent's
// markdown response.
type SpecOutput struct {
	AcceptanceCriteria []string
	Tasks              []string
}

var sectionPattern = regexp.MustCompile(`(?m)^###\s+(.+)$`)

// ParseSpecOutput extracts the "Acceptance Criteria" and "Tasks
// Breakdown" sections from spec-agent markdown. Items come from list
// markers or, for JSON-ish sections, from a repaired JSON array.
func ParseSpecOutput(raw string) (*SpecOutput, error) {
	sections := splitSections(raw)

	out := &SpecOutput{
		AcceptanceCriteria: parseItems(sections["acceptance criteria"]),
		Tasks:              parseItems(sections["tasks breakdown"]),
	}
	if len(out.AcceptanceCriteria) == 0 && len(out.Tasks) == 0 {
		return nil, clawerr.NewValidation("spec output has no acceptance criteria or tasks sections")
	}
	return out, nil
}

// splitSections maps lowercase "### Heading" names to their body text.
func splitSections(raw string) map[string]string {
	sections := make(map[string]string)
	locs := sectionPattern.FindAllStringSubmatchIndex(raw, -1)
	for i, loc := range locs {
		name := strings.ToLower(strings.TrimSpace(raw[loc[2]:loc[3]]))
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[name] = strings.TrimSpace(raw[loc[1]:end])
	}
	return sections
}

// parseItems reads list items from a section body. A body that looks like
// a JSON array (possibly malformed LLM output) is repaired and decoded;
// otherwise markdown list markers and numbered items are stripped.
func parseItems(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	if strings.HasPrefix(body, "[") {
		repaired, err := jsonrepair.JSONRepair(body)
		if err == nil {
			var items []string
			if json.Unmarshal([]byte(repaired), &items) == nil {
				return trimAll(items)
			}
		}
	}

	var items []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		line = numberedPrefix.ReplaceAllString(line, "")
		if line != "" && !strings.HasPrefix(line, "#") {
			items = append(items, line)
		}
	}
	return items
}

var numberedPrefix = regexp.MustCompile(`^\d+[.)]\s+`)

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ApplySpecOutput writes a parsed spec onto a pipeline feature: the raw
// markdown becomes the spec doc, criteria are stored on the item, and
// each task becomes a pipeline sub-task.
func ApplySpecOutput(ctx context.Context, p *pipeline.Service, featureID int64, raw string, spec *SpecOutput) error {
	if err := p.SetSpec(ctx, featureID, raw, spec.AcceptanceCriteria); err != nil {
		return err
	}
	for _, task := range spec.Tasks {
		if _, err := p.AddTask(ctx, featureID, task, ""); err != nil {
			return err
		}
	}
	return nil
}

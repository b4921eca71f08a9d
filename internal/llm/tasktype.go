package llm

import "strings"

// TaskType classifies a completion request for routing purposes.
type TaskType string

const (
	TaskSummarize TaskType = "summarize"
	TaskCode      TaskType = "code"
	TaskDebug     TaskType = "debug"
	TaskTranslate TaskType = "translate"
	TaskRefactor  TaskType = "refactor"
	TaskTest      TaskType = "test"
	TaskResearch  TaskType = "research"
	TaskExtract   TaskType = "extract"
	TaskDefault   TaskType = "default"
)

// keywordRules maps a prompt keyword to a task type. Checked in order so
// the more specific verbs win over "code".
var keywordRules = []struct {
	keyword string
	task    TaskType
}{
	{"summarize", TaskSummarize},
	{"debug", TaskDebug},
	{"translate", TaskTranslate},
	{"refactor", TaskRefactor},
	{"test", TaskTest},
	{"research", TaskResearch},
	{"extract", TaskExtract},
	{"code", TaskCode},
}

// longContentThreshold triggers summarisation routing for large inputs.
const longContentThreshold = 5000

// InferTaskType applies the keyword heuristics to prompt and content.
// Long content implies summarisation; a code fence implies code.
func InferTaskType(prompt, content string) TaskType {
	combined := strings.ToLower(prompt + " " + content)

	for _, rule := range keywordRules {
		if strings.Contains(combined, rule.keyword) {
			return rule.task
		}
	}

	if len(content) > longContentThreshold {
		return TaskSummarize
	}
	if strings.Contains(content, "```") {
		return TaskCode
	}
	return TaskDefault
}

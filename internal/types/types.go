// Package types defines the shared enumerations used across the runtime.
// Every constraint set that also appears as a CHECK constraint in the
// database schema is defined here, once.
package types

// TaskStatus is the lifecycle state of an operator task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskStatuses lists every valid task status.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{TaskTodo, TaskInProgress, TaskBlocked, TaskDone, TaskCancelled}
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// ItemType classifies a pipeline work item.
type ItemType string

const (
	ItemFeature    ItemType = "feature"
	ItemStory      ItemType = "story"
	ItemRisk       ItemType = "risk"
	ItemIssue      ItemType = "issue"
	ItemAssumption ItemType = "assumption"
	ItemDependency ItemType = "dependency"
)

// ItemTypes lists every valid pipeline item type.
func ItemTypes() []ItemType {
	return []ItemType{ItemFeature, ItemStory, ItemRisk, ItemIssue, ItemAssumption, ItemDependency}
}

// validStagesByType is the canonical per-type stage machine. The stored
// union (StageUnion) is broader because old rows may carry legacy values;
// validation always consults this map, never the union.
var validStagesByType = map[ItemType][]string{
	ItemFeature:    {"idea", "spec", "spec-review", "building", "final-review", "live"},
	ItemStory:      {"backlog", "in-progress", "qa", "done", "blocked"},
	ItemRisk:       {"identified", "mitigating", "resolved", "accepted"},
	ItemIssue:      {"identified", "investigating", "resolved"},
	ItemAssumption: {"identified", "validated", "invalidated"},
	ItemDependency: {"identified", "waiting", "resolved", "blocked"},
}

// legacyStages are values present in old databases that no type accepts
// for new transitions but that the storage layer must keep loadable.
var legacyStages = []string{"ready", "build", "review"}

// ValidStages returns the ordered stage set for a pipeline item type.
// The returned slice must not be mutated.
func ValidStages(t ItemType) []string {
	return validStagesByType[t]
}

// IsValidStage reports whether stage is allowed for the given item type.
func IsValidStage(t ItemType, stage string) bool {
	for _, s := range validStagesByType[t] {
		if s == stage {
			return true
		}
	}
	return false
}

// StageRank returns the position of stage in the type's stage order, or -1.
func StageRank(t ItemType, stage string) int {
	for i, s := range validStagesByType[t] {
		if s == stage {
			return i
		}
	}
	return -1
}

// StageUnion returns every stage value the database may store, across all
// item types plus legacy values. Used to build the CHECK constraint.
func StageUnion() []string {
	seen := make(map[string]bool)
	var union []string
	for _, t := range ItemTypes() {
		for _, s := range validStagesByType[t] {
			if !seen[s] {
				seen[s] = true
				union = append(union, s)
			}
		}
	}
	for _, s := range legacyStages {
		if !seen[s] {
			seen[s] = true
			union = append(union, s)
		}
	}
	return union
}

// PipelineTaskStatus is the state of a sub-task under a pipeline item.
type PipelineTaskStatus string

const (
	PipelineTaskTodo    PipelineTaskStatus = "todo"
	PipelineTaskDoing   PipelineTaskStatus = "doing"
	PipelineTaskDone    PipelineTaskStatus = "done"
	PipelineTaskBlocked PipelineTaskStatus = "blocked"
)

// NoteType classifies a pipeline note.
type NoteType string

const (
	NoteHandover NoteType = "handover"
	NoteBlocker  NoteType = "blocker"
	NoteQuestion NoteType = "question"
	NoteDecision NoteType = "decision"
	NoteInfo     NoteType = "info"
	NoteStarted  NoteType = "started"
	NoteProgress NoteType = "progress"
	NoteComplete NoteType = "complete"
)

// MemoryCategory classifies a long-term memory row.
type MemoryCategory string

const (
	MemoryFact       MemoryCategory = "fact"
	MemoryPreference MemoryCategory = "preference"
	MemoryLesson     MemoryCategory = "lesson"
	MemoryTodo       MemoryCategory = "todo"
	MemoryPerson     MemoryCategory = "person"
	MemoryProject    MemoryCategory = "project"
	MemoryOther      MemoryCategory = "other"
)

// KnowledgeSource classifies where a knowledge cache entry came from.
type KnowledgeSource string

const (
	SourceResearch     KnowledgeSource = "research"
	SourceWeb          KnowledgeSource = "web"
	SourceConversation KnowledgeSource = "conversation"
	SourceManual       KnowledgeSource = "manual"
)

// ContextStatus tracks the contextualisation state of a session chunk.
type ContextStatus string

const (
	ContextPending  ContextStatus = "pending"
	ContextComplete ContextStatus = "complete"
	ContextFailed   ContextStatus = "failed"
)

// IndexStatus tracks the indexing state of a transcript file.
type IndexStatus string

const (
	IndexComplete IndexStatus = "complete"
	IndexPartial  IndexStatus = "partial"
	IndexFailed   IndexStatus = "failed"
)

// ObservationCategory classifies a self-observation row.
type ObservationCategory string

const (
	ObsTaskPreference ObservationCategory = "task_preference"
	ObsCommunication  ObservationCategory = "communication"
	ObsDecision       ObservationCategory = "decision"
	ObsError          ObservationCategory = "error"
	ObsOther          ObservationCategory = "other"
)

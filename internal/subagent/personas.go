// Package subagent assembles spawn requests for delegated worker agents:
// persona selection, memory-grounded prompt assembly, and structured
// parsing of spec-agent output back into the pipeline.
package subagent

import "time"

// Role identifies a worker persona.
type Role string

const (
	RoleDeveloper  Role = "developer"
	RoleQA         Role = "qa"
	RoleResearcher Role = "researcher"
	RoleWriter     Role = "writer"
	RoleSpec       Role = "spec"
)

// Persona is a worker profile: system framing plus execution defaults.
type Persona struct {
	Role           Role
	SystemPrompt   string
	Model          string
	RunTimeout     time.Duration
	AllowedActions []string
}

// Stage defaults: spec work gets a reasoning model and a generous budget,
// build work gets the longest budget, review runs cheap and fast.
var personas = map[Role]Persona{
	RoleSpec: {
		Role: RoleSpec,
		SystemPrompt: "You are a specification agent. Produce a precise spec for the " +
			"requested feature with sections '### Acceptance Criteria' and '### Tasks Breakdown', " +
			"each a markdown list. Be concrete about edge cases and out-of-scope items.",
		Model:          "deepseek-reasoner",
		RunTimeout:     300 * time.Second,
		AllowedActions: []string{"read", "search"},
	},
	RoleDeveloper: {
		Role: RoleDeveloper,
		SystemPrompt: "You are a developer agent. Implement exactly what the story and its " +
			"acceptance criteria require. Leave a handover note describing state and remaining work.",
		Model:          "deepseek-chat",
		RunTimeout:     600 * time.Second,
		AllowedActions: []string{"read", "write", "run", "search"},
	},
	RoleQA: {
		Role: RoleQA,
		SystemPrompt: "You are a review agent. Check the change against the acceptance criteria " +
			"and report pass or fail with specific findings.",
		Model:          "gemini-2.0-flash",
		RunTimeout:     180 * time.Second,
		AllowedActions: []string{"read", "run", "search"},
	},
	RoleResearcher: {
		Role: RoleResearcher,
		SystemPrompt: "You are a research agent. Gather current, sourced information on the topic " +
			"and summarise findings with links.",
		Model:          "gemini-2.0-flash",
		RunTimeout:     300 * time.Second,
		AllowedActions: []string{"read", "search", "fetch"},
	},
	RoleWriter: {
		Role: RoleWriter,
		SystemPrompt: "You are a writing agent. Draft the requested content in the operator's voice, " +
			"matching tone and length guidance in the task.",
		Model:          "deepseek-chat",
		RunTimeout:     300 * time.Second,
		AllowedActions: []string{"read", "search"},
	},
}

// GetPersona returns the persona for a role, or the developer persona for
// unknown roles.
func GetPersona(role Role) Persona {
	if p, ok := personas[role]; ok {
		return p
	}
	return personas[RoleDeveloper]
}

// Roles lists the known personas.
func Roles() []Role {
	return []Role{RoleDeveloper, RoleQA, RoleResearcher, RoleWriter, RoleSpec}
}

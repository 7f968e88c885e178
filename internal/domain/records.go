package domain

import (
	"time"
)

// Model is a registry entry describing one upstream model that prompts can be
// routed to.
type Model struct {
	// ID is the registry identifier used by submissions.
	ID string `json:"id" bson:"_id"`

	// Slug is the upstream identifier in provider/name form, for example
	// "openai/gpt-4o".
	Slug string `json:"model_id" bson:"slug"`

	// Name is the human readable display name.
	Name string `json:"name" bson:"name"`

	// Provider is the display name of the model vendor.
	Provider string `json:"provider" bson:"provider"`

	// Enabled controls whether the model is offered for submissions.
	Enabled bool `json:"enabled" bson:"enabled"`

	// ContextLength is the advertised context window in tokens.
	ContextLength int `json:"context_length" bson:"context_length"`
}

// Ref returns the compact identity embedded in response and failure records.
func (m Model) Ref() ModelRef {
	return ModelRef{ID: m.ID, Name: m.Name, Provider: m.Provider}
}

// ModelRef identifies a model inside derived records.
type ModelRef struct {
	ID       string `json:"id" bson:"id"`
	Name     string `json:"name" bson:"name"`
	Provider string `json:"provider" bson:"provider"`
}

// Prompt is a persisted user prompt.
type Prompt struct {
	ID        string    `json:"id" bson:"_id"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ResponseRecord is one successful completion stored against a prompt.
type ResponseRecord struct {
	ID       string   `json:"id" bson:"_id"`
	PromptID string   `json:"prompt_id" bson:"prompt_id"`
	ModelID  string   `json:"model_id" bson:"model_id"`
	Model    ModelRef `json:"model" bson:"model"`

	// Text is the trimmed completion text.
	Text string `json:"response_text" bson:"response_text"`

	// ElapsedMs is the wall-clock time of the upstream call.
	ElapsedMs int64 `json:"response_time_ms" bson:"response_time_ms"`

	TokensIn  int       `json:"tokens_in" bson:"tokens_in"`
	TokensOut int       `json:"tokens_out" bson:"tokens_out"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ModelFailure reports a model whose completion could not be obtained or
// stored. Failed models are never grouped.
type ModelFailure struct {
	ModelID string      `json:"model_id"`
	Model   ModelRef    `json:"model"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Warning reports a non-fatal problem with a submission, such as derived
// records that could not be stored.
type Warning struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// GroupRecord is a persisted consensus group.
type GroupRecord struct {
	ID         string    `json:"id" bson:"_id"`
	PromptID   string    `json:"prompt_id" bson:"prompt_id"`
	GroupName  string    `json:"group_name" bson:"group_name"`
	Count      int       `json:"count" bson:"count"`
	Percentage float64   `json:"percentage" bson:"percentage"`
	Color      string    `json:"color" bson:"color"`
	Members    []string  `json:"models" bson:"models"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// Submission is the outcome of sending one prompt to a set of models.
type Submission struct {
	PromptID  string           `json:"prompt_id"`
	Responses []ResponseRecord `json:"responses"`
	Failures  []ModelFailure   `json:"failures"`
	Groups    []ConsensusGroup `json:"consensus_groups"`
	Warnings  []Warning        `json:"warnings,omitempty"`
}

// GroupRecords converts ranked groups into persistable records for promptID.
// The caller assigns IDs.
func GroupRecords(promptID string, groups []ConsensusGroup, now time.Time) []GroupRecord {
	records := make([]GroupRecord, len(groups))
	for i, g := range groups {
		records[i] = GroupRecord{
			PromptID:   promptID,
			GroupName:  g.Key,
			Count:      g.Count,
			Percentage: g.Percentage,
			Color:      g.Color,
			Members:    append([]string(nil), g.Members...),
			CreatedAt:  now,
		}
	}
	return records
}

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ahrav/go-consensus/internal/domain"
)

func TestModelUpsert(t *testing.T) {
	tests := []struct {
		name   string
		model  domain.Model
		wantID string
	}{
		{
			name:   "new model gets generated id on insert",
			model:  domain.Model{Slug: "openai/gpt-4o", Name: "GPT-4o", Provider: "OpenAI", Enabled: true, ContextLength: 128000},
			wantID: "generated",
		},
		{
			name:   "caller id used on insert",
			model:  domain.Model{ID: "fixed", Slug: "cohere/command-r", Name: "Command R", Provider: "Cohere"},
			wantID: "fixed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write := modelUpsert(tt.model, func() string { return "generated" })

			assert.Equal(t, bson.M{"slug": tt.model.Slug}, write.Filter)
			require.NotNil(t, write.Upsert)
			assert.True(t, *write.Upsert)

			update, ok := write.Update.(bson.M)
			require.True(t, ok)
			assert.Equal(t, bson.M{"_id": tt.wantID}, update["$setOnInsert"])

			set, ok := update["$set"].(bson.M)
			require.True(t, ok)
			assert.Equal(t, tt.model.Name, set["name"])
			assert.Equal(t, tt.model.Enabled, set["enabled"])
			assert.NotContains(t, set, "_id", "existing documents keep their id")
		})
	}
}

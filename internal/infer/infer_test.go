package infer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolf75222/alldone/internal/model"
)

func TestStripJSONFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"clean", `{"edges": []}`},
		{"json tag", "```json\n{\"edges\": []}\n```"},
		{"plain fence", "```\n{\"edges\": []}\n```"},
		{"whitespace", "  \n```json\n{\"edges\": []}\n```\n  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, `{"edges": []}`, stripJSONFences(tc.in))
		})
	}
}

func TestBuildPrompt_ContainsTaskData(t *testing.T) {
	prompt, err := buildPrompt([]TaskSummary{
		{ID: "T1", Title: "Setup DB", Status: model.StatusTodo},
		{ID: "T2", Title: "Add API", Status: model.StatusInProgress},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Setup DB")
	assert.Contains(t, prompt, `"id": "T2"`)
	assert.Contains(t, prompt, `"status": "in_progress"`)
}

func TestSummaries_FirstIDWins(t *testing.T) {
	got := Summaries([]model.Task{
		{ID: "a", Title: "First", Status: model.StatusDone},
		{ID: "b", Title: "Second"},
		{ID: "a", Title: "Shadow"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].Title)
	assert.Equal(t, model.StatusDone, got[0].Status)
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult("```json\n" + `{
  "edges": [
    {"source_id": "a", "target_id": "b", "reason": "schema first"},
    {"blocker_id": "b", "blocked_id": "c", "reason": "legacy shape"}
  ],
  "summary": "a then b then c"
}` + "\n```")
	require.NoError(t, err)

	assert.Equal(t, "a then b then c", res.Summary)
	require.Len(t, res.Edges, 2)
	assert.Equal(t, Edge{SourceID: "a", TargetID: "b", Reason: "schema first"}, res.Edges[0])
	assert.Equal(t, Edge{SourceID: "b", TargetID: "c", Reason: "legacy shape"}, res.Edges[1])
}

func TestParseResult_Invalid(t *testing.T) {
	_, err := ParseResult("I think a blocks b")
	assert.ErrorContains(t, err, "parse claude response")
}

func tasks(ids ...string) []model.Task {
	out := make([]model.Task, len(ids))
	for i, id := range ids {
		out[i] = model.Task{ID: id, Title: id}
	}
	return out
}

func TestValidate(t *testing.T) {
	ts := tasks("a", "b", "c", "d")
	rels := []model.Relation{
		{SourceTaskID: "a", TargetTaskID: "b", Type: model.RelationBlocks},
		{SourceTaskID: "c", TargetTaskID: "d", Type: model.RelationRelates},
	}
	edges := []Edge{
		{SourceID: "x", TargetID: "a"},
		{SourceID: "a", TargetID: "y"},
		{SourceID: "c", TargetID: "c"},
		{SourceID: "b", TargetID: "a"},
		{SourceID: "d", TargetID: "c"},
		{SourceID: "b", TargetID: "c"},
		{SourceID: "c", TargetID: "a"},
		{SourceID: "a", TargetID: "d"},
	}

	accepted, skipped := Validate(ts, rels, edges)

	assert.Equal(t, []Edge{
		{SourceID: "b", TargetID: "c"},
		{SourceID: "a", TargetID: "d"},
	}, accepted)

	reasons := make([]string, len(skipped))
	for i, s := range skipped {
		reasons[i] = s.Reason
	}
	assert.Equal(t, []string{
		"unknown source task x",
		"unknown target task y",
		"self relation",
		"tasks are already related",
		"tasks are already related",
		"would create a cycle",
	}, reasons)
}

func TestValidate_AcceptedEdgesConstrainLaterOnes(t *testing.T) {
	accepted, skipped := Validate(tasks("a", "b", "c"), nil, []Edge{
		{SourceID: "a", TargetID: "b"},
		{SourceID: "b", TargetID: "c"},
		{SourceID: "c", TargetID: "a"},
		{SourceID: "a", TargetID: "b"},
	})
	assert.Len(t, accepted, 2)
	require.Len(t, skipped, 2)
	assert.Equal(t, "would create a cycle", skipped[0].Reason)
	assert.Equal(t, "tasks are already related", skipped[1].Reason)
}

func TestValidate_ExistingCycleElsewhere(t *testing.T) {
	rels := []model.Relation{
		{SourceTaskID: "a", TargetTaskID: "b", Type: model.RelationBlocks},
		{SourceTaskID: "b", TargetTaskID: "a", Type: model.RelationDepends},
	}
	accepted, skipped := Validate(tasks("a", "b", "c", "d"), rels, []Edge{{SourceID: "c", TargetID: "d"}})
	assert.Len(t, accepted, 1, "a cycle between other tasks does not block new edges")
	assert.Empty(t, skipped)
}

// Package infer asks Claude to propose blocking relations between tasks from
// their titles and filters the proposals down to ones that are safe to store.
package infer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/wolf75222/alldone/internal/graph"
	"github.com/wolf75222/alldone/internal/model"
)

// TaskSummary is the minimal task info sent to Claude.
type TaskSummary struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Status model.Status `json:"status"`
}

// Edge is one proposed relation: Source blocks Target.
type Edge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}

// Result is the parsed model response.
type Result struct {
	Edges   []Edge `json:"edges"`
	Summary string `json:"summary"`
}

// Client wraps the Anthropic SDK.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient creates a Claude client. apiKey defaults to ANTHROPIC_API_KEY and
// model defaults to Claude Sonnet.
func NewClient(apiKey, modelName string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	m := anthropic.ModelClaudeSonnet4_6
	if modelName != "" {
		m = anthropic.Model(modelName)
	}
	return &Client{
		inner: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: m,
	}, nil
}

const inferPrompt = `You are planning the schedule of a project. Given its tasks, propose which tasks block which.

Rules:
- Only add a relation when the target task cannot start before the source task is finished.
- Prefer fewer relations. Skip transitive or speculative ones.
- Do not create cycles.
- Only use task ids from the list.
- A task cannot block itself.

Answer with JSON in exactly this shape:
{
  "edges": [
    {"source_id": "<task that must finish first>", "target_id": "<task that waits>", "reason": "<short explanation>"}
  ],
  "summary": "<one paragraph on the overall ordering>"
}

Return ONLY the JSON object, without markdown fences.

Tasks:
`

// Summaries converts tasks into the form sent to Claude. Duplicate ids keep
// the first task.
func Summaries(tasks []model.Task) []TaskSummary {
	seen := make(map[string]bool, len(tasks))
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, TaskSummary{ID: t.ID, Title: t.Title, Status: t.Status})
	}
	return out
}

func buildPrompt(tasks []TaskSummary) (string, error) {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tasks: %w", err)
	}
	return inferPrompt + string(data), nil
}

// Infer calls the Claude API and parses the proposed relations.
func (c *Client) Infer(ctx context.Context, tasks []TaskSummary) (*Result, error) {
	prompt, err := buildPrompt(tasks)
	if err != nil {
		return nil, err
	}

	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(4096),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API call: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseResult(text.String())
}

// ParseResult decodes a response body. Markdown fences are tolerated, and
// edges written as blocker_id/blocked_id pairs are read as source/target.
func ParseResult(text string) (*Result, error) {
	text = stripJSONFences(text)
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("parse claude response: invalid JSON\nraw: %s", text)
	}
	root := gjson.Parse(text)

	res := &Result{Summary: root.Get("summary").String()}
	root.Get("edges").ForEach(func(_, e gjson.Result) bool {
		edge := Edge{
			SourceID: e.Get("source_id").String(),
			TargetID: e.Get("target_id").String(),
			Reason:   e.Get("reason").String(),
		}
		if edge.SourceID == "" && edge.TargetID == "" {
			edge.SourceID = e.Get("blocker_id").String()
			edge.TargetID = e.Get("blocked_id").String()
		}
		res.Edges = append(res.Edges, edge)
		return true
	})
	return res, nil
}

// stripJSONFences removes markdown code fences that Claude sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// Skip is a proposed edge that did not pass validation.
type Skip struct {
	Edge   Edge   `json:"edge"`
	Reason string `json:"reason"`
}

// Validate filters proposals against the snapshot. Edges naming unknown
// tasks, self edges, pairs that are already related (in either direction)
// and edges that would close a scheduling cycle are skipped. Edges are
// considered in order, so an accepted edge constrains the ones after it.
func Validate(tasks []model.Task, relations []model.Relation, edges []Edge) (accepted []Edge, skipped []Skip) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	related := make(map[[2]string]bool, len(relations))
	var scheduling []model.Relation
	for _, r := range relations {
		related[pairKey(r.SourceTaskID, r.TargetTaskID)] = true
		if r.Type.Schedules() {
			scheduling = append(scheduling, r)
		}
	}

	// Every task takes part in the cycle check, dated or not.
	anchor := time.Time{}
	nodes := make([]model.Task, len(tasks))
	for i, t := range tasks {
		t.StartDate, t.DueDate = &anchor, &anchor
		nodes[i] = t
	}

	for _, e := range edges {
		switch {
		case !known[e.SourceID]:
			skipped = append(skipped, Skip{Edge: e, Reason: "unknown source task " + e.SourceID})
			continue
		case !known[e.TargetID]:
			skipped = append(skipped, Skip{Edge: e, Reason: "unknown target task " + e.TargetID})
			continue
		case e.SourceID == e.TargetID:
			skipped = append(skipped, Skip{Edge: e, Reason: "self relation"})
			continue
		case related[pairKey(e.SourceID, e.TargetID)]:
			skipped = append(skipped, Skip{Edge: e, Reason: "tasks are already related"})
			continue
		}

		candidate := append(scheduling[:len(scheduling):len(scheduling)], model.Relation{
			SourceTaskID: e.SourceID,
			TargetTaskID: e.TargetID,
			Type:         model.RelationBlocks,
		})
		if closesCycle(graph.Build(nodes, candidate), e) {
			skipped = append(skipped, Skip{Edge: e, Reason: "would create a cycle"})
			continue
		}

		scheduling = candidate
		related[pairKey(e.SourceID, e.TargetID)] = true
		accepted = append(accepted, e)
	}
	return accepted, skipped
}

// closesCycle reports whether both ends of e sit on the same cycle.
func closesCycle(g *graph.Graph, e Edge) bool {
	for _, cycle := range g.Cycles() {
		var src, dst bool
		for _, id := range cycle {
			src = src || id == e.SourceID
			dst = dst || id == e.TargetID
		}
		if src && dst {
			return true
		}
	}
	return false
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

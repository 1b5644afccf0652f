package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/completion"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/registry"
)

const (
	NoMatchSentinel = "__NO_MATCH__"

	contextMarker = "[INSTALLED CONTEXT]"
	requestMarker = "[USER REQUEST]"
	topResults    = 3
)

// AnswerSources is attached to answers produced from installed context.
var AnswerSources = []string{"Acquired Intelligence Pack"}

// Marketplace is the slice of the Hive API the executor reads and writes.
type Marketplace interface {
	Search(ctx context.Context, q, category string, minPriceUnits int64) ([]models.SkillView, error)
	PublishAsAgent(ctx context.Context, req registry.AgentPublishRequest) (*models.SkillView, error)
}

// Research controls synthesizing and publishing a new skill when search
// finds nothing. Disabled when Enabled is false.
type Research struct {
	Enabled          bool
	ProviderIdentity string
	PayoutAddress    string
}

type Executor struct {
	market    Marketplace
	completer completion.Completer
	research  Research
	logger    *slog.Logger
}

func NewExecutor(market Marketplace, completer completion.Completer, research Research, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{market: market, completer: completer, research: research, logger: logger}
}

// Execute produces the output for one task and the outcome to submit it
// with. It never returns an error: failures become an error output with
// outcome failed.
func (e *Executor) Execute(ctx context.Context, task *models.Task) (models.TaskOutput, string) {
	out, err := e.execute(ctx, task)
	if err != nil {
		e.logger.Error("task execution failed", "task_id", task.ID, "error", err)
		return models.ErrorOutput("Error accessing the Hive Marketplace: " + err.Error()), models.TaskStatusFailed
	}
	return out, models.TaskStatusCompleted
}

func (e *Executor) execute(ctx context.Context, task *models.Task) (models.TaskOutput, error) {
	contextText, request, hasContext := SplitInstalledContext(task.Input)
	if hasContext {
		answer, err := e.completer.Complete(ctx, answerPrompt(contextText), request)
		if err != nil {
			return models.TaskOutput{}, fmt.Errorf("answer from installed context: %w", err)
		}
		answer = strings.TrimSpace(answer)
		if answer != "" && !strings.HasPrefix(answer, NoMatchSentinel) {
			return models.AnswerOutput(answer, AnswerSources), nil
		}
		e.logger.Info("installed context does not cover request, searching marketplace", "task_id", task.ID)
	}

	keywords := ExtractKeywords(request)
	skills, err := e.market.Search(ctx, keywords, "", 0)
	if err != nil {
		return models.TaskOutput{}, fmt.Errorf("search marketplace: %w", err)
	}
	if len(skills) > 0 {
		return recommend(skills), nil
	}

	if e.research.Enabled {
		view, err := e.researchAndPublish(ctx, request)
		if err == nil {
			out := recommend([]models.SkillView{*view})
			out.Text = "No existing pack matched, so I researched the topic and published a new intelligence pack. Purchase it to unlock the answer."
			out.Published = true
			return out, nil
		}
		e.logger.Warn("research and publish failed", "task_id", task.ID, "error", err)
	}

	return models.TaskOutput{
		Type: models.OutputNoSkillsFound,
		Text: fmt.Sprintf("I searched the Hive Marketplace for %q but found no matching intelligence packs.\n\nUpload a relevant skill to the marketplace so I can learn!", keywords),
	}, nil
}

// SplitInstalledContext separates an "[INSTALLED CONTEXT] ... [USER REQUEST]"
// input into its context and request parts. Inputs without the block are
// returned whole as the request.
func SplitInstalledContext(input string) (contextText, request string, ok bool) {
	start := strings.Index(input, contextMarker)
	if start < 0 {
		return "", input, false
	}
	rest := input[start+len(contextMarker):]
	end := strings.Index(rest, requestMarker)
	if end < 0 {
		return "", input, false
	}
	return strings.TrimSpace(rest[:end]), strings.TrimSpace(rest[end+len(requestMarker):]), true
}

func recommend(skills []models.SkillView) models.TaskOutput {
	best := skills[0]
	n := min(len(skills), topResults)
	return models.TaskOutput{
		Type:       models.OutputRecommendation,
		Text:       "I found a matching intelligence pack on the marketplace. Purchase it to unlock the answer.",
		Skill:      &best,
		AllResults: append([]models.SkillView(nil), skills[:n]...),
	}
}

func answerPrompt(contextText string) string {
	return `You are an expert AI assistant on the Hive-402 network.
You have been given specialized knowledge through purchased intelligence packs.
Use ONLY the following acquired intelligence to answer the user's question.
If asked about code, provide real working examples in markdown code blocks.
Be detailed, technical and precise. Format your response with markdown.

IMPORTANT: If the user's question is NOT covered by your acquired intelligence below, respond with EXACTLY the text "` + NoMatchSentinel + `" and nothing else.

## YOUR ACQUIRED INTELLIGENCE:
` + contextText
}

const researchPrompt = `You are a research agent that writes intelligence packs for the Hive-402 marketplace.
Given a user's question, design one pack that would answer it.
Respond with a single JSON object and nothing else:
{"title": string, "description": string, "category": string, "complexity": integer from 1 to 5}`

type researchedSkill struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Complexity  int    `json:"complexity"`
}

var errEmptyResearch = errors.New("research reply is missing title, description or category")

func (e *Executor) researchAndPublish(ctx context.Context, request string) (*models.SkillView, error) {
	reply, err := e.completer.Complete(ctx, researchPrompt, request)
	if err != nil {
		return nil, fmt.Errorf("research: %w", err)
	}
	var rs researchedSkill
	if err := json.Unmarshal([]byte(stripFence(reply)), &rs); err != nil {
		return nil, fmt.Errorf("decode research reply: %w", err)
	}
	if rs.Title == "" || rs.Description == "" || rs.Category == "" {
		return nil, errEmptyResearch
	}

	view, err := e.market.PublishAsAgent(ctx, registry.AgentPublishRequest{
		Title:            rs.Title,
		Description:      rs.Description,
		Category:         rs.Category,
		Complexity:       rs.Complexity,
		ProviderIdentity: e.research.ProviderIdentity,
		PayoutAddress:    e.research.PayoutAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("publish researched skill: %w", err)
	}
	if view.ID == uuid.Nil {
		return nil, errors.New("publish returned no skill id")
	}
	e.logger.Info("published researched skill", "skill_id", view.ID, "price_units", view.PriceUnits)
	return view, nil
}

// stripFence removes a surrounding ``` or ```json code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

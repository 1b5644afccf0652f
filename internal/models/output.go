package models

import (
	"encoding/json"
	"fmt"
)

// Task output kinds.
const (
	OutputAnswer         = "answer"
	OutputRecommendation = "recommendation"
	OutputNoSkillsFound  = "no_skills_found"
	OutputError          = "error"
)

// TaskOutput is the tagged union agents submit as a task's output.
// Required fields per kind:
//   - answer: Text
//   - recommendation: Text, Skill
//   - no_skills_found: Text
//   - error: Text
type TaskOutput struct {
	Type       string      `json:"type"`
	Text       string      `json:"text"`
	Sources    []string    `json:"sources,omitempty"`
	Skill      *SkillView  `json:"skill,omitempty"`
	AllResults []SkillView `json:"allResults,omitempty"`
	Published  bool        `json:"published,omitempty"`
}

func AnswerOutput(text string, sources []string) TaskOutput {
	return TaskOutput{Type: OutputAnswer, Text: text, Sources: sources}
}

func ErrorOutput(text string) TaskOutput {
	return TaskOutput{Type: OutputError, Text: text}
}

// Encode renders the output as the JSON text stored on the task.
func (o TaskOutput) Encode() string {
	b, err := json.Marshal(o)
	if err != nil {
		// Only reachable with unsupported values, which TaskOutput cannot hold.
		return fmt.Sprintf(`{"type":"error","text":%q}`, err.Error())
	}
	return string(b)
}

// DecodeTaskOutput parses stored output text.
func DecodeTaskOutput(s string) (TaskOutput, error) {
	var o TaskOutput
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return TaskOutput{}, fmt.Errorf("decode task output: %w", err)
	}
	return o, nil
}

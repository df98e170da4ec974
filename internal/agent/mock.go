package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// MockRuntime produces deterministic answers without any network calls.
type MockRuntime struct{}

func NewMockRuntime() *MockRuntime {
	return &MockRuntime{}
}

var (
	positiveWords = []string{"good", "great", "love", "fascinating", "brilliant", "happy", "excellent", "amazing", "fun", "awesome", "wonderful", "interesting"}
	negativeWords = []string{"bad", "hate", "boring", "terrible", "awful", "sad", "wrong", "annoying", "stupid", "worse", "worst", "ridiculous"}
)

func (m *MockRuntime) Run(ctx context.Context, task Task) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	switch resultType(task) {
	case ResultFloat:
		return finish(task, Result{Float: lexiconScore(task.Context["text"])})
	case ResultBool:
		return finish(task, Result{Bool: true})
	}

	name := "Someone"
	if task.Persona != nil && strings.TrimSpace(task.Persona.Name) != "" {
		name = task.Persona.Name
	}
	topic := strings.TrimSpace(task.Context["topic"])
	if topic == "" {
		topic = "this"
	}
	text := fmt.Sprintf("%s here. I find %s genuinely interesting, and I have a few thoughts to add.", name, topic)
	if strings.TrimSpace(task.Context["transcript"]) != "" {
		text += " Building on what was said before, I mostly agree."
	}
	return finish(task, Result{Text: text})
}

// lexiconScore maps word polarity counts onto [0, 1], centered on 0.5.
func lexiconScore(text string) float64 {
	var pos, neg int
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		for _, p := range positiveWords {
			if w == p {
				pos++
			}
		}
		for _, n := range negativeWords {
			if w == n {
				neg++
			}
		}
	}
	score := 0.5 + 0.1*float64(pos-neg)
	return math.Max(0, math.Min(1, score))
}

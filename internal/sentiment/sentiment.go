// Package sentiment scores text on a 0..1 scale and maps scores onto labels.
package sentiment

import (
	"context"
	"fmt"

	"github.com/ent0n29/roundtable/internal/agent"
)

// Label is a five-bin sentiment category.
type Label string

const (
	VeryPositive Label = "Very Positive"
	Positive     Label = "Positive"
	Neutral      Label = "Neutral"
	Negative     Label = "Negative"
	VeryNegative Label = "Very Negative"
)

// Labels lists every label from most to least positive.
var Labels = []Label{VeryPositive, Positive, Neutral, Negative, VeryNegative}

// ErrOutOfRange is returned when the classifier answers outside [0, 1].
var ErrOutOfRange = agent.ErrOutOfRange

const classifyObjective = "Classify the sentiment of the text as a value between 0 and 1"

// Result is a score together with its label.
type Result struct {
	Score float64 `json:"score"`
	Label Label   `json:"label"`
}

// LabelFor maps a score onto its bin. Boundary values belong to the higher bin.
func LabelFor(score float64) Label {
	switch {
	case score >= 0.8:
		return VeryPositive
	case score >= 0.6:
		return Positive
	case score >= 0.4:
		return Neutral
	case score >= 0.2:
		return Negative
	default:
		return VeryNegative
	}
}

// Scorer classifies text through the agent runtime.
type Scorer struct {
	runtime agent.Runtime
	model   string
}

// NewScorer returns a scorer. An empty model uses the runtime default.
func NewScorer(runtime agent.Runtime, model string) *Scorer {
	return &Scorer{runtime: runtime, model: model}
}

// Score classifies text. Runtime and validation errors are returned as-is;
// no fallback score is ever substituted.
func (s *Scorer) Score(ctx context.Context, text string) (Result, error) {
	res, err := s.runtime.Run(ctx, agent.Task{
		Objective:  classifyObjective,
		Context:    map[string]string{"text": text},
		ResultType: agent.ResultFloat,
		Model:      s.model,
		Validate:   agent.Between(0, 1),
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify sentiment: %w", err)
	}
	// Runtimes are not trusted to have applied Validate.
	if !(res.Float >= 0 && res.Float <= 1) {
		return Result{}, fmt.Errorf("classify sentiment: %w: %v", ErrOutOfRange, res.Float)
	}
	return Result{Score: res.Float, Label: LabelFor(res.Float)}, nil
}

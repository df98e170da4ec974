// Package agent runs persona tasks against an LLM execution backend.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResultType selects the shape of a task's result.
type ResultType string

const (
	ResultText  ResultType = "text"
	ResultFloat ResultType = "float"
	ResultBool  ResultType = "bool"
)

var (
	ErrValidation  = errors.New("agent result failed validation")
	ErrOutOfRange  = errors.New("value out of range")
	ErrEmptyResult = errors.New("agent returned an empty result")
	ErrInteractive = errors.New("interactive tasks are not supported by this runtime")
)

// Persona is the character a task is executed as.
type Persona struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Instructions string   `json:"instructions"`
	Tools        []string `json:"tools,omitempty"`
}

// Task is one unit of work for the runtime.
type Task struct {
	Objective    string
	Instructions string
	Persona      *Persona
	Context      map[string]string
	ResultType   ResultType
	Interactive  bool
	// Model overrides the runtime's default model when set.
	Model    string
	Validate func(Result) error
}

// Result holds the typed answer. Only the field matching Type is meaningful.
type Result struct {
	Type  ResultType
	Text  string
	Float float64
	Bool  bool
}

// Runtime executes tasks.
type Runtime interface {
	Run(ctx context.Context, task Task) (Result, error)
}

// Between validates that a float result lies in [min, max]. NaN never does.
func Between(min, max float64) func(Result) error {
	return func(r Result) error {
		if !(r.Float >= min && r.Float <= max) {
			return fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfRange, r.Float, min, max)
		}
		return nil
	}
}

func resultType(t Task) ResultType {
	if t.ResultType == "" {
		return ResultText
	}
	return t.ResultType
}

func finish(task Task, res Result) (Result, error) {
	res.Type = resultType(task)
	if res.Type == ResultText {
		res.Text = strings.TrimSpace(res.Text)
		if res.Text == "" {
			return Result{}, ErrEmptyResult
		}
	}
	if task.Validate != nil {
		if err := task.Validate(res); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return res, nil
}

// Config controls runtime construction.
type Config struct {
	Mode            string
	Model           string
	APIKey          string
	BaseURL         string
	HTTPURL         string
	Timeout         time.Duration
	MaxOutputTokens int
}

func NewRuntime(cfg Config) (Runtime, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	var (
		rt  Runtime
		err error
	)
	switch mode {
	case "auto":
		rt, err = newAutoRuntime(cfg)
	case "openai":
		rt, err = NewOpenAIRuntime(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxOutputTokens)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("agent HTTP url is required for http mode")
		}
		rt = NewHTTPRuntime(cfg.HTTPURL)
	case "mock":
		rt = NewMockRuntime()
	default:
		return nil, fmt.Errorf("unsupported agent mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		rt = WithTimeout(rt, cfg.Timeout)
	}
	return rt, nil
}

func newAutoRuntime(cfg Config) (Runtime, error) {
	if strings.TrimSpace(cfg.APIKey) != "" {
		return NewOpenAIRuntime(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxOutputTokens)
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPRuntime(cfg.HTTPURL), nil
	}
	return NewMockRuntime(), nil
}

type timeoutRuntime struct {
	next    Runtime
	timeout time.Duration
}

// WithTimeout bounds every Run call of next by d.
func WithTimeout(next Runtime, d time.Duration) Runtime {
	return &timeoutRuntime{next: next, timeout: d}
}

func (r *timeoutRuntime) Run(ctx context.Context, task Task) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Run(ctx, task)
}

// ObserveFunc receives the duration and outcome of one Run call.
type ObserveFunc func(resultType ResultType, elapsed time.Duration, err error)

type observedRuntime struct {
	next    Runtime
	observe ObserveFunc
}

// Instrument reports every Run call of next to observe.
func Instrument(next Runtime, observe ObserveFunc) Runtime {
	if observe == nil {
		return next
	}
	return &observedRuntime{next: next, observe: observe}
}

func (r *observedRuntime) Run(ctx context.Context, task Task) (Result, error) {
	start := time.Now()
	res, err := r.next.Run(ctx, task)
	r.observe(resultType(task), time.Since(start), err)
	return res, err
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIRuntime runs tasks through the OpenAI Responses API. Typed results
// use strict JSON-schema output.
type OpenAIRuntime struct {
	client          *openai.Client
	model           string
	maxOutputTokens int64
}

func NewOpenAIRuntime(apiKey, baseURL, model string, maxOutputTokens int) (*OpenAIRuntime, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai model is required")
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 1200
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failures surface to the caller; rounds are never retried.
		option.WithMaxRetries(0),
	}
	if u := strings.TrimSpace(baseURL); u != "" {
		opts = append(opts, option.WithBaseURL(u))
	}
	client := openai.NewClient(opts...)
	return &OpenAIRuntime{
		client:          &client,
		model:           strings.TrimSpace(model),
		maxOutputTokens: int64(maxOutputTokens),
	}, nil
}

func (r *OpenAIRuntime) Run(ctx context.Context, task Task) (Result, error) {
	if task.Interactive {
		return Result{}, ErrInteractive
	}

	model := r.model
	if m := strings.TrimSpace(task.Model); m != "" {
		model = m
	}

	params := responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(r.maxOutputTokens),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(renderInput(task), responses.EasyInputMessageRoleUser),
			},
		},
	}
	if instructions := renderInstructions(task); instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	switch resultType(task) {
	case ResultFloat:
		params.Text = jsonSchemaFormat("FloatAnswer", "A single numeric answer", floatSchema)
	case ResultBool:
		params.Text = jsonSchemaFormat("BoolAnswer", "A single yes/no answer", boolSchema)
	case ResultText:
	default:
		return Result{}, fmt.Errorf("unsupported result type %q", task.ResultType)
	}

	resp, err := r.client.Responses.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("openai responses: %w", err)
	}
	return parseOutput(task, resp.OutputText())
}

func jsonSchemaFormat(name, description string, schema map[string]any) responses.ResponseTextConfigParam {
	return responses.ResponseTextConfigParam{
		Format: responses.ResponseFormatTextConfigUnionParam{
			OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
				Name:        name,
				Schema:      schema,
				Strict:      openai.Bool(true),
				Description: openai.String(description),
				Type:        "json_schema",
			},
		},
	}
}

// parseOutput converts raw model output into the task's result type.
func parseOutput(task Task, output string) (Result, error) {
	switch resultType(task) {
	case ResultFloat:
		var out floatAnswer
		if err := decodeModelJSON(output, &out); err != nil {
			return Result{}, fmt.Errorf("decode float result: %w", err)
		}
		return finish(task, Result{Float: out.Value})
	case ResultBool:
		var out boolAnswer
		if err := decodeModelJSON(output, &out); err != nil {
			return Result{}, fmt.Errorf("decode bool result: %w", err)
		}
		return finish(task, Result{Bool: out.Value})
	default:
		return finish(task, Result{Text: output})
	}
}

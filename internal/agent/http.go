package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// StatusError reports a non-2xx reply from an agent gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent http status %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

// HTTPRuntime forwards tasks to an agent gateway speaking JSON over HTTP.
type HTTPRuntime struct {
	url    string
	client *http.Client
}

func NewHTTPRuntime(url string) *HTTPRuntime {
	return NewHTTPRuntimeWithClient(url, &http.Client{})
}

func NewHTTPRuntimeWithClient(url string, client *http.Client) *HTTPRuntime {
	return &HTTPRuntime{url: strings.TrimSpace(url), client: client}
}

type httpTaskRequest struct {
	Objective    string            `json:"objective"`
	Instructions string            `json:"instructions,omitempty"`
	Persona      *Persona          `json:"persona,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	ResultType   ResultType        `json:"result_type"`
	Interactive  bool              `json:"interactive"`
	Model        string            `json:"model,omitempty"`
}

func (r *HTTPRuntime) Run(ctx context.Context, task Task) (Result, error) {
	payload, err := json.Marshal(httpTaskRequest{
		Objective:    task.Objective,
		Instructions: task.Instructions,
		Persona:      task.Persona,
		Context:      task.Context,
		ResultType:   resultType(task),
		Interactive:  task.Interactive,
		Model:        task.Model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Result{}, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		text, err := consumeStreaming(res.Body)
		if err != nil {
			return Result{}, err
		}
		return parseOutput(task, text)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return parsePlain(task, string(body))
	}
	if v, ok := obj["value"]; ok {
		return parseValue(task, v)
	}
	return parsePlain(task, extractText(obj))
}

// consumeStreaming concatenates the text deltas of an SSE or NDJSON body.
func consumeStreaming(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = extractText(obj)
		}
		out.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func parseValue(task Task, v any) (Result, error) {
	switch resultType(task) {
	case ResultFloat:
		f, ok := v.(float64)
		if !ok {
			return Result{}, fmt.Errorf("value %v is not a number", v)
		}
		return finish(task, Result{Float: f})
	case ResultBool:
		b, ok := v.(bool)
		if !ok {
			return Result{}, fmt.Errorf("value %v is not a boolean", v)
		}
		return finish(task, Result{Bool: b})
	default:
		s, _ := v.(string)
		return finish(task, Result{Text: s})
	}
}

// parsePlain interprets a bare text reply.
func parsePlain(task Task, text string) (Result, error) {
	text = strings.TrimSpace(text)
	switch resultType(task) {
	case ResultFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return parseOutput(task, text)
		}
		return finish(task, Result{Float: f})
	case ResultBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return parseOutput(task, text)
		}
		return finish(task, Result{Bool: b})
	default:
		return finish(task, Result{Text: text})
	}
}

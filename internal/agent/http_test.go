package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPRuntimeSendsTaskAndReadsText(t *testing.T) {
	var got httpTaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  Bazinga!  "}`))
	}))
	defer srv.Close()

	res, err := NewHTTPRuntime(srv.URL).Run(context.Background(), Task{
		Objective: "Contribute to the discussion",
		Persona:   &Persona{Name: "Sheldon", Instructions: "You are Sheldon."},
		Context:   map[string]string{"topic": "trains"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Text != "Bazinga!" {
		t.Fatalf("res.Text = %q", res.Text)
	}
	if got.Objective != "Contribute to the discussion" || got.Persona == nil || got.Persona.Name != "Sheldon" {
		t.Fatalf("request = %+v", got)
	}
	if got.ResultType != ResultText || got.Context["topic"] != "trains" {
		t.Fatalf("request = %+v", got)
	}
}

func TestHTTPRuntimeReadsTypedValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":0.9}`))
	}))
	defer srv.Close()

	res, err := NewHTTPRuntime(srv.URL).Run(context.Background(), Task{ResultType: ResultFloat, Validate: Between(0, 1)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Float != 0.9 {
		t.Fatalf("res.Float = %v", res.Float)
	}
}

func TestHTTPRuntimeParsesPlainFloat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1.7"))
	}))
	defer srv.Close()

	_, err := NewHTTPRuntime(srv.URL).Run(context.Background(), Task{ResultType: ResultFloat, Validate: Between(0, 1)})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Run() error = %v, want ErrOutOfRange", err)
	}
}

func TestHTTPRuntimeStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPRuntime(srv.URL).Run(context.Background(), Task{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Run() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable || statusErr.Body != "overloaded" {
		t.Fatalf("statusErr = %+v", statusErr)
	}
}

func TestConsumeStreamingSSE(t *testing.T) {
	stream := strings.NewReader(strings.Join([]string{
		": keepalive",
		"",
		"data: {\"delta\":\"Hel\"}",
		"",
		"data: {\"delta\":\"lo\"}",
		"",
		"data: [DONE]",
		"",
	}, "\n"))
	got, err := consumeStreaming(stream)
	if err != nil {
		t.Fatalf("consumeStreaming() error = %v", err)
	}
	if got != "Hello" {
		t.Fatalf("consumeStreaming() = %q, want Hello", got)
	}
}

func TestConsumeStreamingNDJSON(t *testing.T) {
	stream := strings.NewReader("{\"delta\":\"Hi\"}\n{\"text\":\" there\"}\n")
	got, err := consumeStreaming(stream)
	if err != nil {
		t.Fatalf("consumeStreaming() error = %v", err)
	}
	if got != "Hi there" {
		t.Fatalf("consumeStreaming() = %q, want %q", got, "Hi there")
	}
}

func TestHTTPRuntimeRejectsPlainNaN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("NaN"))
	}))
	defer srv.Close()

	_, err := NewHTTPRuntime(srv.URL).Run(context.Background(), Task{
		Objective:  "score",
		ResultType: ResultFloat,
		Validate:   Between(0, 1),
	})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Run() error = %v, want ErrOutOfRange", err)
	}
}

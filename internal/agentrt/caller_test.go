package agentrt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/modelapi"
)

type stubGenerator struct {
	responses []json.RawMessage
	errs      []error
	calls     int
}

func (g *stubGenerator) Generate(context.Context, modelapi.GenerateParams) (string, error) {
	return "", nil
}

func (g *stubGenerator) GenerateStructured(context.Context, modelapi.GenerateParams, map[string]any) (json.RawMessage, error) {
	i := g.calls
	g.calls++
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	var resp json.RawMessage
	if i < len(g.responses) {
		resp = g.responses[i]
	}
	return resp, err
}

type stubCallerResolver struct {
	gen *stubGenerator
	err error
}

func (r stubCallerResolver) GeneratorFor(string) (modelapi.Generator, error) { return r.gen, r.err }
func (r stubCallerResolver) Embedder() (modelapi.Embedder, error)           { return nil, nil }

func testConfig() *config.Config {
	return &config.Config{Pipeline: config.PipelineConfig{MaxRetries: 2, RetryDelayBaseSeconds: 0.001}}
}

func TestCaller_Call_SucceedsFirstTry(t *testing.T) {
	gen := &stubGenerator{responses: []json.RawMessage{json.RawMessage(`{"title":"ok"}`)}}
	c := NewCaller(stubCallerResolver{gen: gen}, NewPromptLibrary(), testConfig())

	schema := map[string]any{"required": []any{"title"}}
	raw, err := c.Call(context.Background(), Request{AgentName: "analyzer", Schema: schema})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(raw) != `{"title":"ok"}` {
		t.Errorf("unexpected result: %s", raw)
	}
	if gen.calls != 1 {
		t.Errorf("expected exactly 1 call on success, got %d", gen.calls)
	}
}

func TestCaller_Call_RetriesOnRetryableError(t *testing.T) {
	gen := &stubGenerator{
		errs:      []error{errors.New("503 service unavailable"), nil},
		responses: []json.RawMessage{nil, json.RawMessage(`{}`)},
	}
	c := NewCaller(stubCallerResolver{gen: gen}, NewPromptLibrary(), testConfig())

	raw, err := c.Call(context.Background(), Request{AgentName: "analyzer"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(raw) != `{}` {
		t.Errorf("unexpected result: %s", raw)
	}
	if gen.calls != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", gen.calls)
	}
}

func TestCaller_Call_NonRetryableErrorFailsImmediately(t *testing.T) {
	gen := &stubGenerator{errs: []error{errors.New("invalid api key")}}
	c := NewCaller(stubCallerResolver{gen: gen}, NewPromptLibrary(), testConfig())

	if _, err := c.Call(context.Background(), Request{AgentName: "analyzer"}); err == nil {
		t.Fatalf("expected a non-retryable error to fail without retrying")
	}
	if gen.calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable failure, got %d", gen.calls)
	}
}

func TestCaller_Call_RetriesOnMalformedStructuredOutput(t *testing.T) {
	schema := map[string]any{"required": []any{"title"}}
	gen := &stubGenerator{
		responses: []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{"title":"ok"}`)},
	}
	c := NewCaller(stubCallerResolver{gen: gen}, NewPromptLibrary(), testConfig())

	raw, err := c.Call(context.Background(), Request{AgentName: "analyzer", Schema: schema})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(raw) != `{"title":"ok"}` {
		t.Errorf("unexpected result: %s", raw)
	}
}

func TestCaller_Call_ExhaustsRetriesAndReturnsMalformedError(t *testing.T) {
	schema := map[string]any{"required": []any{"title"}}
	gen := &stubGenerator{responses: []json.RawMessage{
		json.RawMessage(`{}`), json.RawMessage(`{}`), json.RawMessage(`{}`),
	}}
	c := NewCaller(stubCallerResolver{gen: gen}, NewPromptLibrary(), testConfig())

	if _, err := c.Call(context.Background(), Request{AgentName: "analyzer", Schema: schema}); err == nil {
		t.Fatalf("expected exhausted retries to return an error")
	}
	// MaxRetries=2 means attempts 0,1,2 = 3 calls total.
	if gen.calls != 3 {
		t.Errorf("expected 3 total attempts, got %d", gen.calls)
	}
}

func TestCaller_Call_ResolverErrorIsConfigurationError(t *testing.T) {
	c := NewCaller(stubCallerResolver{err: errors.New("no such agent")}, NewPromptLibrary(), testConfig())
	if _, err := c.Call(context.Background(), Request{AgentName: "missing"}); err == nil {
		t.Fatalf("expected an error when the resolver cannot find a generator")
	}
}

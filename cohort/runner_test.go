package cohort

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/artifact"
	"github.com/movinture/latent-logic/canonical"
	"github.com/movinture/latent-logic/config"
	"github.com/movinture/latent-logic/unifiedllm"
	"github.com/movinture/latent-logic/validation"
)

// fakeClient answers per model. A model mapped to an error fails every call.
type fakeClient struct {
	answers map[string]string
	errs    map[string]error
	delay   time.Duration
	block   bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (c *fakeClient) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		cur := c.maxInFlight.Load()
		if n <= cur || c.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if err := c.errs[req.Model]; err != nil {
		return nil, err
	}
	return &unifiedllm.Response{
		Model:        req.Model,
		Message:      unifiedllm.AssistantMessage(c.answers[req.Model]),
		FinishReason: unifiedllm.FinishReason{Reason: "stop"},
	}, nil
}

func (c *fakeClient) Stream(context.Context, unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error) {
	return nil, errors.New("streaming not scripted")
}

func testPrompts() agentloop.PromptSet {
	return agentloop.PromptSet{
		Version: "v1",
		Prompts: []agentloop.Prompt{
			{ID: "where_ts", Type: agentloop.PromptLocation, Text: "Where is Times Square?", Version: "v1", Query: "Times Square"},
			{ID: "sf_weather", Type: agentloop.PromptWeather, Text: "Weather in SF?", Version: "v1", Query: "San Francisco"},
		},
	}
}

func testSnapshot() *canonical.Snapshot {
	lat, lon := 40.758, -73.9855
	return &canonical.Snapshot{
		PromptVersion: "v1",
		FetchedAtUnix: 1_700_000_000,
		Entries: map[string]canonical.Entry{
			"where_ts": {Type: agentloop.PromptLocation, Lat: &lat, Lon: &lon},
		},
	}
}

func newTestRunner(t *testing.T, client Client) (*Runner, *artifact.Index) {
	t.Helper()
	ix, err := artifact.OpenIndex(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return &Runner{
		Framework:   agentloop.NewScratchLoop(client),
		Tools:       agentloop.NewToolRegistry(),
		Validator:   validation.NewValidator(validation.DefaultTolerances()),
		Store:       artifact.NewStore(t.TempDir(), zaptest.NewLogger(t)),
		Index:       ix,
		Concurrency: 2,
		UnitTimeout: 5 * time.Second,
		MaxTurns:    4,
		Logger:      zaptest.NewLogger(t),
	}, ix
}

func TestRunnerPersistsEveryUnit(t *testing.T) {
	client := &fakeClient{
		answers: map[string]string{"good": "Times Square is at 40.758 N, 73.9855 W."},
		errs:    map[string]error{"bad": &unifiedllm.ServerError{ProviderError: unifiedllm.ProviderError{SDKError: unifiedllm.SDKError{Message: "boom"}, StatusCode: 500}}},
	}
	runner, ix := newTestRunner(t, client)
	events := &EventLog{}
	runner.Events = events

	report, err := runner.Run(context.Background(), "rg1", []string{"good", "bad"}, testPrompts(), testSnapshot())
	require.NoError(t, err)

	require.Len(t, report.Units, 4)
	order := make([]string, 0, len(report.Units))
	for _, u := range report.Units {
		order = append(order, u.Model+"/"+u.PromptID)
		assert.FileExists(t, u.RunPath)
		assert.FileExists(t, u.ValidationPath)
	}
	assert.Equal(t, []string{"good/where_ts", "good/sf_weather", "bad/where_ts", "bad/sf_weather"}, order)

	good := report.Units[0]
	assert.Equal(t, agentloop.StatusComplete, good.Status)
	assert.Equal(t, validation.Valid, good.Valid)
	assert.Equal(t, validation.ProvenanceParametric, good.Provenance)
	assert.NoError(t, good.Err)

	assert.Equal(t, validation.Unverified, report.Units[1].Valid, "no canonical entry")

	bad := report.Units[2]
	assert.Equal(t, agentloop.StatusError, bad.Status)
	assert.Equal(t, validation.Unverified, bad.Valid, "provider failures are not verified wrong")
	assert.Error(t, bad.Err)

	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 0, report.Invalid)
	assert.Equal(t, 3, report.Unverified)
	assert.Equal(t, 2, report.Errors)

	bv, err := artifact.ReadValidation(bad.ValidationPath)
	require.NoError(t, err)
	assert.Equal(t, validation.ReasonRunError, bv.FailureReason)
	assert.Equal(t, "server", bv.Details.RunErrorKind)

	rec, err := artifact.ReadRun(bad.RunPath)
	require.NoError(t, err)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "server", rec.Error.Kind)
	assert.Equal(t, "rg1", rec.RunGroup)

	v, err := artifact.ReadValidation(good.ValidationPath)
	require.NoError(t, err)
	assert.Equal(t, validation.Valid, v.Valid)
	assert.Equal(t, "rg1", v.RunGroup)

	rows, err := ix.Rows(context.Background(), "rg1")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	loaded, err := runner.Store.LoadRows("rg1", agentloop.ScratchFrameworkName)
	require.NoError(t, err)
	assert.Len(t, loaded, 4)

	var starts int
	for _, ev := range events.Events() {
		if ev.Kind == agentloop.EventRunStart {
			starts++
			assert.Equal(t, "rg1", ev.RunGroup)
		}
	}
	assert.Equal(t, 4, starts)
}

func TestRunnerConfigErrors(t *testing.T) {
	runner, _ := newTestRunner(t, &fakeClient{})
	var ce *config.ConfigError

	_, err := runner.Run(context.Background(), "rg", nil, testPrompts(), nil)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "models", ce.Field)

	_, err = runner.Run(context.Background(), "rg", []string{"m"}, agentloop.PromptSet{}, nil)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "prompts", ce.Field)

	_, err = runner.Run(context.Background(), "", []string{"m"}, testPrompts(), nil)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "run_group", ce.Field)
}

func TestRunnerUnitTimeout(t *testing.T) {
	runner, _ := newTestRunner(t, &fakeClient{block: true})
	runner.UnitTimeout = 50 * time.Millisecond

	set := testPrompts()
	set.Prompts = set.Prompts[:1]
	report, err := runner.Run(context.Background(), "rg", []string{"slow"}, set, testSnapshot())
	require.NoError(t, err)
	require.Len(t, report.Units, 1)

	u := report.Units[0]
	assert.Equal(t, agentloop.StatusError, u.Status)
	assert.ErrorIs(t, u.Err, context.DeadlineExceeded)

	rec, err := artifact.ReadRun(u.RunPath)
	require.NoError(t, err)
	assert.Equal(t, "timeout", rec.Error.Kind)

	v, err := artifact.ReadValidation(u.ValidationPath)
	require.NoError(t, err)
	assert.Equal(t, validation.Unverified, v.Valid)
	assert.Equal(t, validation.ReasonRunError, v.FailureReason)
	assert.Equal(t, "timeout", v.Details.RunErrorKind)
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	client := &fakeClient{answers: map[string]string{}, delay: 20 * time.Millisecond}
	runner, _ := newTestRunner(t, client)
	runner.Concurrency = 2

	models := []string{"a", "b", "c"}
	report, err := runner.Run(context.Background(), "rg", models, testPrompts(), nil)
	require.NoError(t, err)
	assert.Len(t, report.Units, 6)
	assert.LessOrEqual(t, client.maxInFlight.Load(), int32(2))
	assert.Equal(t, 6, report.Unverified)
}

func TestRunnerRecoversFromNilRecord(t *testing.T) {
	runner, _ := newTestRunner(t, &fakeClient{})
	runner.Framework = nilFramework{}

	set := testPrompts()
	set.Prompts = set.Prompts[:1]
	report, err := runner.Run(context.Background(), "rg", []string{"m"}, set, testSnapshot())
	require.NoError(t, err)
	u := report.Units[0]
	assert.Equal(t, agentloop.StatusError, u.Status)
	assert.Error(t, u.Err)

	rec, err := artifact.ReadRun(u.RunPath)
	require.NoError(t, err)
	assert.Equal(t, "nil", rec.Framework)
	assert.Equal(t, "v1", rec.PromptVersion)
}

type nilFramework struct{}

func (nilFramework) Name() string { return "nil" }

func (nilFramework) Run(context.Context, *agentloop.RunContext, string, agentloop.Prompt, *agentloop.ToolRegistry, int) (*agentloop.AgentRunRecord, error) {
	return nil, errors.New("refused to start")
}

func TestNewFramework(t *testing.T) {
	client := &fakeClient{}
	for _, name := range []string{agentloop.ScratchFrameworkName, agentloop.StrandsFrameworkName} {
		fw, err := NewFramework(name, client, 2)
		require.NoError(t, err)
		assert.Equal(t, name, fw.Name())
	}
	_, err := NewFramework("langchain", client, 2)
	var ce *config.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(config.RateLimitConfig{}))
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 5})
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.ProviderConfig{Name: "foundry"}, config.GollmConfig{}, nil, nil)
	assert.Error(t, err)
}

// chatServer serves OpenAI chat completions, failing the first failures
// requests with 503.
func chatServer(t *testing.T, content string, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "chatcmpl-%d",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %q}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`, n, content)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRunnerEndToEndWithRetry(t *testing.T) {
	srv, calls := chatServer(t, "It is at 40.758 N, 73.9855 W", 1)

	client, err := NewClient(config.ProviderConfig{
		Name:            "foundry",
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		DefaultProvider: "foundry",
		RequestTimeout:  5 * time.Second,
		Retry:           config.RetryConfig{MaxRetries: 2, BaseDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2},
	}, config.GollmConfig{}, NewLimiter(config.RateLimitConfig{RequestsPerSecond: 100, Burst: 10}), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"foundry"}, client.Providers())

	fw, err := NewFramework(agentloop.ScratchFrameworkName, client, 1)
	require.NoError(t, err)
	runner, _ := newTestRunner(t, client)
	runner.Framework = fw

	set := testPrompts()
	set.Prompts = set.Prompts[:1]
	report, err := runner.Run(context.Background(), "rg-e2e", []string{"gpt-4o"}, set, testSnapshot())
	require.NoError(t, err)

	u := report.Units[0]
	require.NoError(t, u.Err)
	assert.Equal(t, agentloop.StatusComplete, u.Status)
	assert.Equal(t, validation.Valid, u.Valid)
	assert.Equal(t, int32(2), calls.Load(), "one 503 then success")
}

func TestEventLogConcurrentEmit(t *testing.T) {
	log := &EventLog{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Emit(agentloop.RunEvent{Kind: agentloop.EventRunEnd})
		}()
	}
	wg.Wait()
	assert.Len(t, log.Events(), 20)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/mem0mcp/internal/config"
	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/mem0"
	"github.com/localrivet/mem0mcp/internal/memstub"
	"github.com/localrivet/mem0mcp/internal/telemetry"
	"github.com/localrivet/mem0mcp/internal/tools"
)

var errBackend = errortypes.RemoteAPIError(errors.New("503 Service Unavailable"), "memory API server error")

type addCall struct {
	Text     string
	UserID   string
	Category mem0.Category
	Metadata map[string]interface{}
}

type searchCall struct {
	Query    string
	UserID   string
	Category mem0.Category
	Limit    int
}

type listCall struct {
	UserID   string
	Category mem0.Category
}

// MockClient implements MemoryClient for testing
type MockClient struct {
	mu          sync.Mutex
	AddCalls    []addCall
	GetAllCalls []listCall
	SearchCalls []searchCall

	Records   []mem0.Record
	FailNext  int
	FailError error
}

func (m *MockClient) failure() error {
	if m.FailNext > 0 {
		m.FailNext--
		if m.FailError != nil {
			return m.FailError
		}
		return errBackend
	}
	return nil
}

func (m *MockClient) Add(ctx context.Context, text, userID string, category mem0.Category, metadata map[string]interface{}) (*mem0.AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddCalls = append(m.AddCalls, addCall{text, userID, category, metadata})
	if err := m.failure(); err != nil {
		return nil, err
	}
	return &mem0.AddResult{Results: []mem0.AddEvent{{ID: "id-1", Memory: text, Event: "ADD"}}}, nil
}

func (m *MockClient) GetAll(ctx context.Context, userID string, category mem0.Category) ([]mem0.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetAllCalls = append(m.GetAllCalls, listCall{userID, category})
	if err := m.failure(); err != nil {
		return nil, err
	}
	return m.Records, nil
}

func (m *MockClient) Search(ctx context.Context, query, userID string, category mem0.Category, limit int) ([]mem0.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalls = append(m.SearchCalls, searchCall{query, userID, category, limit})
	if err := m.failure(); err != nil {
		return nil, err
	}
	return m.Records, nil
}

func (m *MockClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AddCalls) + len(m.GetAllCalls) + len(m.SearchCalls)
}

func newTestServer(client MemoryClient) *MCPMemoryToolServer {
	return NewMemoryToolServer(client, Options{
		DefaultUserID: "default-user",
		Transport:     config.StdioTransport{},
		Metrics:       telemetry.NewMetricsCollector(),
	})
}

func TestRegistryHasExactlyThreeTools(t *testing.T) {
	s := newTestServer(&MockClient{})
	assert.Equal(t, []string{tools.ToolSaveMemory, tools.ToolGetAllMemories, tools.ToolSearchMemories},
		s.Registry().Names())
	for _, d := range s.Registry().List() {
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.InputSchema["type"])
	}
}

func TestInitialize(t *testing.T) {
	s := newTestServer(&MockClient{})
	require.NoError(t, s.Initialize())
	assert.Equal(t, float64(3), s.metrics.GetGauge(telemetry.MetricRegisteredTools))

	err := NewMemoryToolServer(nil, Options{DefaultUserID: "u"}).Initialize()
	assert.True(t, errortypes.IsConfigError(err))
	assert.ErrorIs(t, err, ErrMissingDependencies)

	err = NewMemoryToolServer(&MockClient{}, Options{DefaultUserID: "  "}).Initialize()
	assert.True(t, errortypes.IsConfigError(err))
}

func TestStartRequiresInitialize(t *testing.T) {
	err := newTestServer(&MockClient{}).Start()
	require.Error(t, err)
	assert.True(t, errortypes.IsConfigError(err))
	assert.ErrorIs(t, err, ErrServerNotInitialized)
}

func TestStartWithoutTransport(t *testing.T) {
	client := &MockClient{}
	s := NewMemoryToolServer(client, Options{DefaultUserID: "u"})
	require.NoError(t, s.Initialize())

	err := s.Start()
	assert.True(t, errortypes.IsConfigError(err))
	assert.Zero(t, client.totalCalls())
}

func TestStopCancelsBaseContext(t *testing.T) {
	s := newTestServer(&MockClient{})
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.baseContext().Err(), context.Canceled)
}

func TestSaveMemory(t *testing.T) {
	client := &MockClient{}
	s := newTestServer(client)

	res := s.SaveMemory(context.Background(), tools.SaveMemoryRequest{Text: "prefers window seats"})
	assert.False(t, res.IsError)
	assert.Equal(t, "Successfully saved memory: prefers window seats", res.Text)

	require.Len(t, client.AddCalls, 1)
	assert.Equal(t, addCall{Text: "prefers window seats", UserID: "default-user", Category: mem0.CategoryMemory}, client.AddCalls[0])
}

func TestSaveMemoryWithMetadata(t *testing.T) {
	client := &MockClient{}
	s := newTestServer(client)

	date := "2024-03-09"
	res := s.SaveMemory(context.Background(), tools.SaveMemoryRequest{
		Text:          "call the plumber",
		UserID:        tools.String("alice"),
		MemoryType:    tools.String("note"),
		MessageNumber: tools.Int(12),
		Date:          &date,
	})
	require.False(t, res.IsError, res.Text)

	require.Len(t, client.AddCalls, 1)
	call := client.AddCalls[0]
	assert.Equal(t, "alice", call.UserID)
	assert.Equal(t, mem0.CategoryNote, call.Category)
	assert.Equal(t, map[string]interface{}{"message_number": 12, "date": "2024-03-09"}, call.Metadata)
}

func TestSaveMemoryTruncatesEcho(t *testing.T) {
	s := newTestServer(&MockClient{})
	text := strings.Repeat("x", 250)
	res := s.SaveMemory(context.Background(), tools.SaveMemoryRequest{Text: text})
	assert.Equal(t, "Successfully saved memory: "+strings.Repeat("x", 100)+"...", res.Text)
}

func TestSaveMemoryEmptyText(t *testing.T) {
	client := &MockClient{}
	s := newTestServer(client)

	res := s.SaveMemory(context.Background(), tools.SaveMemoryRequest{Text: "   "})
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(res.Text, "Error saving memory: "))
	assert.Zero(t, client.totalCalls())
	assert.Equal(t, int64(1), s.metrics.GetCounter(telemetry.MetricInvalidArguments))
}

func TestGetAllMemoriesEmpty(t *testing.T) {
	client := &MockClient{Records: []mem0.Record{}}
	s := newTestServer(client)

	res := s.GetAllMemories(context.Background(), tools.GetAllMemoriesRequest{})
	assert.False(t, res.IsError)
	assert.Equal(t, `No memories found for user "default-user" in category "memory".`, res.Text)
}

func TestGetAllMemoriesRoutesCategoryAndUser(t *testing.T) {
	client := &MockClient{Records: []mem0.Record{{ID: "1", Memory: "dentist on friday"}}}
	s := newTestServer(client)

	res := s.GetAllMemories(context.Background(), tools.GetAllMemoriesRequest{UserID: tools.String("bob"), MemoryType: tools.String("note")})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, "dentist on friday")
	assert.Equal(t, []listCall{{UserID: "bob", Category: mem0.CategoryNote}}, client.GetAllCalls)
}

func TestSearchMemoriesEmptyQueryIssuesNoCall(t *testing.T) {
	client := &MockClient{}
	s := newTestServer(client)

	for _, q := range []string{"", "  ", "\t\n"} {
		res := s.SearchMemories(context.Background(), tools.SearchMemoriesRequest{Query: q})
		assert.True(t, res.IsError)
		assert.True(t, strings.HasPrefix(res.Text, "Error searching memories: "), res.Text)
	}
	assert.Zero(t, client.totalCalls())
}

func TestSearchMemoriesInvalidLimit(t *testing.T) {
	client := &MockClient{}
	s := newTestServer(client)

	res := s.SearchMemories(context.Background(), tools.SearchMemoriesRequest{Query: "tea", Limit: tools.Int(0)})
	assert.True(t, res.IsError)
	assert.Zero(t, client.totalCalls())
}

func TestSearchMemoriesDefaults(t *testing.T) {
	score := 0.9
	client := &MockClient{Records: []mem0.Record{{ID: "1", Memory: "likes tea", Score: &score}}}
	s := newTestServer(client)

	res := s.SearchMemories(context.Background(), tools.SearchMemoriesRequest{Query: "tea"})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, `"score": 0.9`)
	assert.Equal(t, []searchCall{{Query: "tea", UserID: "default-user", Category: mem0.CategoryMemory, Limit: 3}},
		client.SearchCalls)

	s.SearchMemories(context.Background(), tools.SearchMemoriesRequest{Query: "tea", UserID: tools.String("carol"), MemoryType: tools.String("note"), Limit: tools.Int(7)})
	assert.Equal(t, searchCall{Query: "tea", UserID: "carol", Category: mem0.CategoryNote, Limit: 7}, client.SearchCalls[1])
}

func TestSearchMemoriesNoMatches(t *testing.T) {
	s := newTestServer(&MockClient{Records: []mem0.Record{}})
	res := s.SearchMemories(context.Background(), tools.SearchMemoriesRequest{Query: "coffee", UserID: tools.String("u")})
	assert.False(t, res.IsError)
	assert.Equal(t, `No memories matched "coffee" for user "u" in category "memory".`, res.Text)
}

func TestErrorIsolation(t *testing.T) {
	calls := []struct {
		tool   string
		args   string
		prefix string
	}{
		{tools.ToolSaveMemory, `{"text":"hello"}`, "Error saving memory: "},
		{tools.ToolGetAllMemories, `{}`, "Error retrieving memories: "},
		{tools.ToolSearchMemories, `{"query":"hello"}`, "Error searching memories: "},
	}

	for _, c := range calls {
		t.Run(c.tool, func(t *testing.T) {
			client := &MockClient{FailNext: 1}
			s := newTestServer(client)

			res, err := s.Invoke(context.Background(), c.tool, json.RawMessage(c.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.True(t, strings.HasPrefix(res.Text, c.prefix), res.Text)
			assert.Contains(t, res.Text, "memory API server error")

			res, err = s.Invoke(context.Background(), c.tool, json.RawMessage(c.args))
			require.NoError(t, err)
			assert.False(t, res.IsError, res.Text)

			assert.Equal(t, int64(2), s.metrics.GetCounter(telemetry.Name(telemetry.MetricToolCalls, c.tool)))
			assert.Equal(t, int64(1), s.metrics.GetCounter(telemetry.Name(telemetry.MetricToolErrors, c.tool)))
		})
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	_, err := newTestServer(&MockClient{}).Invoke(context.Background(), "delete_memory", nil)
	assert.True(t, errortypes.IsInvalidArgument(err))
}

func TestInvokeMalformedArguments(t *testing.T) {
	client := &MockClient{}
	res, err := newTestServer(client).Invoke(context.Background(), tools.ToolSearchMemories,
		json.RawMessage(`{"query": 42}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Zero(t, client.totalCalls())
}

func TestRoundTripAgainstStandInBackend(t *testing.T) {
	backend, err := memstub.New(memstub.Options{APIKey: "key"})
	require.NoError(t, err)
	srv := httptest.NewServer(backend)
	defer srv.Close()
	defer backend.Close()

	cfg := config.NewConfig()
	cfg.Mem0.APIKey = "key"
	cfg.Mem0.BaseURL = srv.URL
	client, err := mem0.NewClient(cfg, mem0.Options{})
	require.NoError(t, err)

	s := newTestServer(client)
	ctx := context.Background()

	for _, text := range []string{"my cat is called Miso", "I work night shifts"} {
		res := s.SaveMemory(ctx, tools.SaveMemoryRequest{Text: text, UserID: tools.String("erin")})
		require.False(t, res.IsError, res.Text)
	}
	res := s.SaveMemory(ctx, tools.SaveMemoryRequest{Text: "buy cat food", UserID: tools.String("erin"), MemoryType: tools.String("note")})
	require.False(t, res.IsError, res.Text)

	res = s.GetAllMemories(ctx, tools.GetAllMemoriesRequest{UserID: tools.String("erin")})
	require.False(t, res.IsError, res.Text)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(res.Text), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "my cat is called Miso", entries[0]["memory"])
	assert.Equal(t, "I work night shifts", entries[1]["memory"])

	res = s.GetAllMemories(ctx, tools.GetAllMemoriesRequest{UserID: tools.String("erin"), MemoryType: tools.String("note")})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, "buy cat food")
	assert.NotContains(t, res.Text, "Miso")

	res = s.SearchMemories(ctx, tools.SearchMemoriesRequest{Query: "cat", UserID: tools.String("erin")})
	require.False(t, res.IsError, res.Text)
	require.NoError(t, json.Unmarshal([]byte(res.Text), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "my cat is called Miso", entries[0]["memory"])

	res = s.GetAllMemories(ctx, tools.GetAllMemoriesRequest{UserID: tools.String("nobody")})
	assert.Equal(t, `No memories found for user "nobody" in category "memory".`, res.Text)

	backend.FailNext(http.StatusUnauthorized, 1)
	res = s.SearchMemories(ctx, tools.SearchMemoriesRequest{Query: "cat", UserID: tools.String("erin")})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text, "authentication")

	res = s.SearchMemories(ctx, tools.SearchMemoriesRequest{Query: "cat", UserID: tools.String("erin")})
	assert.False(t, res.IsError, res.Text)
}

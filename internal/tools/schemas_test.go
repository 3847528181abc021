package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/mem0"
)

func TestSaveMemoryNormalize(t *testing.T) {
	args, err := SaveMemoryRequest{Text: "likes tea"}.Normalize("default")
	require.NoError(t, err)
	assert.Equal(t, "likes tea", args.Text)
	assert.Equal(t, "default", args.UserID)
	assert.Equal(t, mem0.CategoryMemory, args.Category)
	assert.Nil(t, args.Metadata)

	args, err = SaveMemoryRequest{
		Text:          "standup moved",
		UserID:        String("  alice "),
		MemoryType:    String("note"),
		MessageNumber: Int(4),
		Date:          String("2024-06-01"),
	}.Normalize("default")
	require.NoError(t, err)
	assert.Equal(t, "alice", args.UserID)
	assert.Equal(t, mem0.CategoryNote, args.Category)
	assert.Equal(t, map[string]interface{}{"message_number": 4, "date": "2024-06-01"}, args.Metadata)

	args, err = SaveMemoryRequest{Text: "x", MessageNumber: Int(0)}.Normalize("d")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"message_number": 0}, args.Metadata)
}

func TestSaveMemoryNormalizeErrors(t *testing.T) {
	for _, req := range []SaveMemoryRequest{
		{Text: ""},
		{Text: " \n\t"},
		{Text: "ok", MemoryType: String("task")},
	} {
		_, err := req.Normalize("d")
		require.Error(t, err)
		assert.True(t, errortypes.IsInvalidArgument(err))
	}
}

func TestGetAllMemoriesNormalize(t *testing.T) {
	args, err := GetAllMemoriesRequest{}.Normalize("user")
	require.NoError(t, err)
	assert.Equal(t, ListArgs{UserID: "user", Category: mem0.CategoryMemory}, args)

	_, err = GetAllMemoriesRequest{MemoryType: String("NOTE")}.Normalize("user")
	assert.True(t, errortypes.IsInvalidArgument(err))
}

func TestSearchMemoriesNormalize(t *testing.T) {
	args, err := SearchMemoriesRequest{Query: " tea "}.Normalize("user")
	require.NoError(t, err)
	assert.Equal(t, SearchArgs{Query: "tea", UserID: "user", Category: mem0.CategoryMemory, Limit: DefaultSearchLimit}, args)

	args, err = SearchMemoriesRequest{Query: "tea", Limit: Int(10), UserID: String("bob")}.Normalize("user")
	require.NoError(t, err)
	assert.Equal(t, 10, args.Limit)
	assert.Equal(t, "bob", args.UserID)

	tests := []struct {
		name string
		req  SearchMemoriesRequest
	}{
		{"empty query", SearchMemoriesRequest{Query: ""}},
		{"blank query", SearchMemoriesRequest{Query: "   "}},
		{"zero limit", SearchMemoriesRequest{Query: "tea", Limit: Int(0)}},
		{"negative limit", SearchMemoriesRequest{Query: "tea", Limit: Int(-2)}},
		{"bad category", SearchMemoriesRequest{Query: "tea", MemoryType: String("notes")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Normalize("user")
			require.Error(t, err)
			assert.True(t, errortypes.IsInvalidArgument(err))
		})
	}
}

func TestRequestFieldNames(t *testing.T) {
	var req SearchMemoriesRequest
	require.NoError(t, json.Unmarshal([]byte(`{"query":"q","user_id":"u","memory_type":"note","limit":2}`), &req))
	assert.Equal(t, "q", req.Query)
	assert.Equal(t, String("u"), req.UserID)
	assert.Equal(t, String("note"), req.MemoryType)
	require.NotNil(t, req.Limit)
	assert.Equal(t, 2, *req.Limit)

	var save SaveMemoryRequest
	require.NoError(t, json.Unmarshal([]byte(`{"text":"t","message_number":1,"date":"today"}`), &save))
	require.NotNil(t, save.MessageNumber)
	require.NotNil(t, save.Date)
	assert.Equal(t, "today", *save.Date)
}

func TestGetAllMemoriesNormalizeBlankUser(t *testing.T) {
	args, err := GetAllMemoriesRequest{UserID: String("   ")}.Normalize("user")
	require.NoError(t, err)
	assert.Equal(t, "user", args.UserID)

	args, err = GetAllMemoriesRequest{MemoryType: String("")}.Normalize("user")
	require.NoError(t, err)
	assert.Equal(t, mem0.CategoryMemory, args.Category)
}

func TestInputSchemaOf(t *testing.T) {
	save := InputSchemaOf[SaveMemoryRequest]()
	assert.Equal(t, "object", save["type"])
	assert.Equal(t, []interface{}{"text"}, save["required"])

	props := save["properties"].(map[string]interface{})
	assert.ElementsMatch(t, []string{"text", "user_id", "memory_type", "message_number", "date"}, keys(props))
	memoryType := props["memory_type"].(map[string]interface{})
	assert.Equal(t, "string", memoryType["type"])
	assert.Equal(t, []interface{}{"memory", "note"}, memoryType["enum"])
	assert.Equal(t, "memory", memoryType["default"])
	assert.NotEmpty(t, memoryType["description"])
	assert.Equal(t, "integer", props["message_number"].(map[string]interface{})["type"])

	list := InputSchemaOf[GetAllMemoriesRequest]()
	assert.NotContains(t, list, "required")
	assert.ElementsMatch(t, []string{"user_id", "memory_type"}, keys(list["properties"].(map[string]interface{})))

	search := InputSchemaOf[SearchMemoriesRequest]()
	assert.Equal(t, []interface{}{"query"}, search["required"])
	limit := search["properties"].(map[string]interface{})["limit"].(map[string]interface{})
	assert.Equal(t, "integer", limit["type"])
	assert.Equal(t, float64(1), limit["minimum"])
	assert.Equal(t, float64(DefaultSearchLimit), limit["default"])
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

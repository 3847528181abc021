// Package tools defines the memory tools exposed over MCP: their names,
// argument types, argument normalization, result formatting, and the
// registry the server binds to the transport.
package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/localrivet/gomcp/util/schema"

	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/mem0"
)

const (
	// ToolSaveMemory is the name of the save_memory MCP tool
	ToolSaveMemory = "save_memory"

	// ToolGetAllMemories is the name of the get_all_memories MCP tool
	ToolGetAllMemories = "get_all_memories"

	// ToolSearchMemories is the name of the search_memories MCP tool
	ToolSearchMemories = "search_memories"

	// DefaultSearchLimit is the number of results returned by search_memories
	// when no limit is given
	DefaultSearchLimit = 3
)

// SaveMemoryRequest defines the input schema for save_memory tool.
// Non-pointer fields are required on the wire.
type SaveMemoryRequest struct {
	Text string `json:"text" description:"Content to remember."`

	// UserID selects whose memories are written. Nil or blank means the configured default.
	UserID *string `json:"user_id,omitempty" description:"User whose memories are written. Defaults to the configured user."`

	// MemoryType is "memory" or "note". Nil means "memory".
	MemoryType *string `json:"memory_type,omitempty" description:"Category of memory." enum:"memory,note" default:"memory"`

	MessageNumber *int    `json:"message_number,omitempty" description:"Position of the message in the conversation."`
	Date          *string `json:"date,omitempty" description:"Date the memory refers to."`
}

// GetAllMemoriesRequest defines the input schema for get_all_memories tool
type GetAllMemoriesRequest struct {
	UserID     *string `json:"user_id,omitempty" description:"User whose memories are listed. Defaults to the configured user."`
	MemoryType *string `json:"memory_type,omitempty" description:"Category of memory." enum:"memory,note" default:"memory"`
}

// SearchMemoriesRequest defines the input schema for search_memories tool
type SearchMemoriesRequest struct {
	// Query is matched semantically against the stored memories
	Query string `json:"query" description:"What to look for."`

	UserID     *string `json:"user_id,omitempty" description:"User whose memories are searched. Defaults to the configured user."`
	MemoryType *string `json:"memory_type,omitempty" description:"Category of memory." enum:"memory,note" default:"memory"`

	// Limit caps the number of results. If not specified, DefaultSearchLimit is used.
	Limit *int `json:"limit,omitempty" description:"Maximum number of results." min:"1" default:"3"`
}

// String returns a pointer to v, for the optional request fields.
func String(v string) *string { return &v }

// Int returns a pointer to v, for the optional request fields.
func Int(v int) *int { return &v }

// SaveArgs are validated save_memory arguments.
type SaveArgs struct {
	Text     string
	UserID   string
	Category mem0.Category
	Metadata map[string]interface{}
}

// ListArgs are validated get_all_memories arguments.
type ListArgs struct {
	UserID   string
	Category mem0.Category
}

// SearchArgs are validated search_memories arguments.
type SearchArgs struct {
	Query    string
	UserID   string
	Category mem0.Category
	Limit    int
}

// Normalize validates the request and fills in defaults. Metadata carries
// only the optional fields that were supplied.
func (r SaveMemoryRequest) Normalize(defaultUserID string) (SaveArgs, error) {
	if strings.TrimSpace(r.Text) == "" {
		return SaveArgs{}, invalid(ToolSaveMemory, errors.New("text must not be empty"))
	}
	category, err := mem0.ParseCategory(deref(r.MemoryType))
	if err != nil {
		return SaveArgs{}, invalid(ToolSaveMemory, err)
	}

	var metadata map[string]interface{}
	if r.MessageNumber != nil || r.Date != nil {
		metadata = make(map[string]interface{}, 2)
		if r.MessageNumber != nil {
			metadata["message_number"] = *r.MessageNumber
		}
		if r.Date != nil {
			metadata["date"] = *r.Date
		}
	}

	return SaveArgs{
		Text:     r.Text,
		UserID:   resolveUser(r.UserID, defaultUserID),
		Category: category,
		Metadata: metadata,
	}, nil
}

// Normalize validates the request and fills in defaults.
func (r GetAllMemoriesRequest) Normalize(defaultUserID string) (ListArgs, error) {
	category, err := mem0.ParseCategory(deref(r.MemoryType))
	if err != nil {
		return ListArgs{}, invalid(ToolGetAllMemories, err)
	}
	return ListArgs{UserID: resolveUser(r.UserID, defaultUserID), Category: category}, nil
}

// Normalize validates the request and fills in defaults.
func (r SearchMemoriesRequest) Normalize(defaultUserID string) (SearchArgs, error) {
	query := strings.TrimSpace(r.Query)
	if query == "" {
		return SearchArgs{}, invalid(ToolSearchMemories, errors.New("query must not be empty"))
	}
	category, err := mem0.ParseCategory(deref(r.MemoryType))
	if err != nil {
		return SearchArgs{}, invalid(ToolSearchMemories, err)
	}

	limit := DefaultSearchLimit
	if r.Limit != nil {
		if *r.Limit < 1 {
			return SearchArgs{}, invalid(ToolSearchMemories, errors.New("limit must be at least 1")).
				WithField("limit", *r.Limit)
		}
		limit = *r.Limit
	}

	return SearchArgs{
		Query:    query,
		UserID:   resolveUser(r.UserID, defaultUserID),
		Category: category,
		Limit:    limit,
	}, nil
}

func resolveUser(userID *string, defaultUserID string) string {
	if u := strings.TrimSpace(deref(userID)); u != "" {
		return u
	}
	return defaultUserID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func invalid(tool string, err error) *errortypes.AppError {
	return errortypes.InvalidArgument(err, "invalid arguments").WithField("tool", tool)
}

// InputSchemaOf returns the JSON Schema of the tool arguments A, generated
// from the json, description, enum, default and min tags of its fields.
// Non-pointer fields are listed as required.
func InputSchemaOf[A any]() map[string]interface{} {
	var zero A
	raw, err := json.Marshal(schema.FromStruct(zero))
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return out
}

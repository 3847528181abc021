// Package mem0 is a client for the hosted Mem0 memory API.
//
// Each method issues exactly one HTTP request. Nothing is cached and failed
// requests are not retried; every failure is returned as a RemoteAPIError.
package mem0

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Category partitions a user's records. It is passed to the backend verbatim.
type Category string

const (
	CategoryMemory Category = "memory"
	CategoryNote   Category = "note"
)

// DefaultCategory is used when a caller does not name one.
const DefaultCategory = CategoryMemory

// ParseCategory accepts "memory" or "note". Surrounding whitespace is ignored
// and the empty string maps to DefaultCategory.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.TrimSpace(s)); c {
	case "":
		return DefaultCategory, nil
	case CategoryMemory, CategoryNote:
		return c, nil
	default:
		return "", fmt.Errorf("memory_type must be %q or %q, got %q", CategoryMemory, CategoryNote, s)
	}
}

// Message is one conversational turn submitted for indexing.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is a memory as returned by the backend.
type Record struct {
	ID        string                 `json:"id,omitempty"`
	Memory    string                 `json:"memory"`
	UserID    string                 `json:"user_id,omitempty"`
	Category  Category               `json:"category,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Score     *float64               `json:"score,omitempty"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

// AddEvent describes one record the backend created or changed for an add call.
type AddEvent struct {
	ID     string `json:"id"`
	Memory string `json:"memory,omitempty"`
	Event  string `json:"event,omitempty"`
}

// AddResult is the backend's answer to an add call.
type AddResult struct {
	Results []AddEvent `json:"results"`
}

// IDs returns the backend-assigned identifiers.
func (r *AddResult) IDs() []string {
	ids := make([]string, 0, len(r.Results))
	for _, e := range r.Results {
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

type addRequest struct {
	UserID   string                 `json:"user_id"`
	Category Category               `json:"category"`
	Messages []Message              `json:"messages"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// decodeList accepts either {"results": [...]} or a bare JSON array.
// An empty body or null yields an empty, non-nil slice.
func decodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}

	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = []T{}
		}
		return out, nil
	}

	var envelope struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if envelope.Results == nil {
		envelope.Results = []T{}
	}
	return envelope.Results, nil
}

package mem0

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/localrivet/mem0mcp/internal/errortypes"
)

// Failure kinds recorded in the "kind" field of a RemoteAPIError.
const (
	KindAuthentication = "authentication"
	KindQuota          = "quota"
	KindRejected       = "rejected"
	KindServer         = "server"
	KindNetwork        = "network"
	KindDecode         = "decode"
)

// maxBodySnippet bounds how much of an error body is carried in the error.
const maxBodySnippet = 512

// classifyStatus maps a non-2xx status to a failure kind and a message.
func classifyStatus(status int) (kind, message string) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication, "authentication with the memory API failed"
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return KindQuota, "memory API quota or rate limit exceeded"
	case status >= 500:
		return KindServer, "memory API server error"
	default:
		return KindRejected, "memory API rejected the request"
	}
}

func statusError(op string, resp *http.Response, body []byte) *errortypes.AppError {
	kind, message := classifyStatus(resp.StatusCode)
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxBodySnippet {
		snippet = snippet[:maxBodySnippet] + "..."
	}

	var cause error
	if snippet == "" {
		cause = errors.New(resp.Status)
	} else {
		cause = fmt.Errorf("%s: %s", resp.Status, snippet)
	}

	return errortypes.RemoteAPIError(cause, message).
		WithFields(map[string]interface{}{
			"op":          op,
			"kind":        kind,
			"status_code": resp.StatusCode,
		})
}

func transportError(op string, err error) *errortypes.AppError {
	return errortypes.RemoteAPIError(err, "memory API request failed").
		WithFields(map[string]interface{}{
			"op":   op,
			"kind": KindNetwork,
		})
}

func decodeError(op string, err error) *errortypes.AppError {
	return errortypes.RemoteAPIError(err, "memory API returned an unreadable response").
		WithFields(map[string]interface{}{
			"op":   op,
			"kind": KindDecode,
		})
}

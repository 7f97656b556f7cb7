package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/taskchat/taskchat/internal/api"
)

// Agent-visible notices for failures that carry no server text.
const (
	NoticeNoTask      = "Please select a task before sending a message."
	NoticeUnreachable = "Unable to reach the server. Please check that the backend is running and try again."
	NoticeEmptyReply  = "I'm here to help!"
)

// replyFields are probed in order on an object payload.
var replyFields = []string{"response", "message", "text"}

// ExtractReply pulls the reply text out of a chat payload. A bare JSON
// string is used as-is; an object yields its first non-empty response,
// message or text field; anything else is shown literally.
func ExtractReply(payload []byte) string {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return NoticeEmptyReply
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed)
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		for _, f := range replyFields {
			if s, ok := t[f].(string); ok && s != "" {
				return s
			}
		}
	}
	return string(trimmed)
}

// Describe renders a failed chat call as an agent message.
func Describe(err error) string {
	var te *api.TransportError
	if errors.As(err, &te) {
		return NoticeUnreachable
	}
	var se *api.StatusError
	if errors.As(err, &se) {
		return describeStatus(se.Code, se.Body)
	}
	return "Error: " + err.Error()
}

func describeStatus(code int, body []byte) string {
	trimmed := bytes.TrimSpace(body)

	var obj map[string]json.RawMessage
	if json.Unmarshal(trimmed, &obj) == nil {
		if detail, ok := obj["detail"]; ok {
			return fmt.Sprintf("Error %d: %s", code, formatDetail(detail))
		}
	}
	if len(trimmed) == 0 {
		return fmt.Sprintf("Error %d: %s", code, http.StatusText(code))
	}
	return fmt.Sprintf("Error %d: %s", code, trimmed)
}

// validationEntry is one item of a schema-validation detail array.
type validationEntry struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// formatDetail renders a detail value: strings verbatim, validation arrays
// as comma-joined "loc.path: msg", anything else as its JSON text.
func formatDetail(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var entries []json.RawMessage
	if json.Unmarshal(raw, &entries) == nil {
		parts := make([]string, 0, len(entries))
		for _, e := range entries {
			parts = append(parts, formatEntry(e))
		}
		return strings.Join(parts, ", ")
	}
	return string(raw)
}

func formatEntry(raw json.RawMessage) string {
	var ve validationEntry
	if json.Unmarshal(raw, &ve) != nil || ve.Msg == "" {
		return string(raw)
	}
	if len(ve.Loc) == 0 {
		return ve.Msg
	}
	loc := make([]string, len(ve.Loc))
	for i, p := range ve.Loc {
		loc[i] = fmt.Sprint(p)
	}
	return strings.Join(loc, ".") + ": " + ve.Msg
}

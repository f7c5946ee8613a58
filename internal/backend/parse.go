package backend

import (
	"encoding/json"
	"fmt"
)

// Server event type tags.
const (
	typePartUpdated      = "message.part.updated"
	typeSessionStatus    = "session.status"
	typeSessionIdle      = "session.idle"
	typeSessionError     = "session.error"
	typePermissionAsked  = "permission.asked"
	typePermissionLegacy = "permission.updated"
)

type wireEvent struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

type wirePart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	Type      string         `json:"type"` // "text" | "tool" | "reasoning" | …
	Text      string         `json:"text,omitempty"`
	CallID    string         `json:"callID,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	State     *wireToolState `json:"state,omitempty"`
	Time      *wirePartTime  `json:"time,omitempty"`
}

type wireToolState struct {
	Status string `json:"status"`
	Title  string `json:"title,omitempty"`
}

type wirePartTime struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type wireError struct {
	Name string `json:"name"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// ParseEvent decodes one server event. It returns a nil Event without error
// for event types the bridge does not act on.
func ParseEvent(data []byte) (Event, error) {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch ev.Type {
	case typePartUpdated:
		var props struct {
			Part wirePart `json:"part"`
		}
		if err := json.Unmarshal(ev.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		return partEvent(props.Part), nil

	case typeSessionStatus:
		var props struct {
			SessionID string `json:"sessionID"`
			Status    struct {
				Type string `json:"type"`
			} `json:"status"`
		}
		if err := json.Unmarshal(ev.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		if props.Status.Type != "idle" {
			return nil, nil
		}
		return SessionIdle{SessionID: props.SessionID}, nil

	case typeSessionIdle:
		var props struct {
			SessionID string `json:"sessionID"`
		}
		if err := json.Unmarshal(ev.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		return SessionIdle{SessionID: props.SessionID}, nil

	case typeSessionError:
		var props struct {
			SessionID string          `json:"sessionID"`
			Error     json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(ev.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		return SessionError{SessionID: props.SessionID, Message: errorMessage(props.Error)}, nil

	case typePermissionAsked, typePermissionLegacy:
		var props struct {
			ID        string `json:"id"`
			SessionID string `json:"sessionID"`
		}
		if err := json.Unmarshal(ev.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		if props.ID == "" {
			return nil, nil
		}
		return PermissionRequest{ID: props.ID, SessionID: props.SessionID}, nil
	}

	return nil, nil
}

func partEvent(p wirePart) Event {
	switch p.Type {
	case "text":
		return PartialResponse{
			SessionID: p.SessionID,
			Text:      p.Text,
			Final:     p.Time != nil && p.Time.End != 0,
		}
	case "tool":
		if p.State == nil {
			return nil
		}
		label := p.State.Title
		if label == "" {
			label = p.Tool
		}
		return ToolUpdate{
			SessionID: p.SessionID,
			CallID:    p.CallID,
			Label:     label,
			Status:    ToolStatus(p.State.Status),
		}
	}
	return nil
}

// errorMessage accepts either a bare string or a {name, data:{message}} object.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj wireError
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Data.Message != "" {
			return obj.Data.Message
		}
		return obj.Name
	}
	return ""
}

// Package backend talks to the agent server: it creates sessions, submits
// prompts, answers permission requests, and turns the server's event stream
// into a closed set of typed events.
package backend

// Event is one of PartialResponse, ToolUpdate, SessionIdle, SessionError or
// PermissionRequest. Other server events never cross this boundary.
type Event interface {
	// Session returns the backend session the event belongs to.
	Session() string
	isEvent()
}

// ToolStatus is the lifecycle state of a tool invocation.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// PartialResponse carries the whole text of a response part so far.
// Final is set once the part has an end time.
type PartialResponse struct {
	SessionID string
	Text      string
	Final     bool
}

// ToolUpdate reports a state change of one tool invocation.
type ToolUpdate struct {
	SessionID string
	CallID    string
	Label     string
	Status    ToolStatus
}

// SessionIdle marks the end of a turn.
type SessionIdle struct {
	SessionID string
}

// SessionError reports a backend failure for a session. Message may be empty.
type SessionError struct {
	SessionID string
	Message   string
}

// PermissionRequest asks the bridge to approve a tool action.
type PermissionRequest struct {
	ID        string
	SessionID string
}

func (e PartialResponse) Session() string   { return e.SessionID }
func (e ToolUpdate) Session() string        { return e.SessionID }
func (e SessionIdle) Session() string       { return e.SessionID }
func (e SessionError) Session() string      { return e.SessionID }
func (e PermissionRequest) Session() string { return e.SessionID }

func (PartialResponse) isEvent()   {}
func (ToolUpdate) isEvent()        {}
func (SessionIdle) isEvent()       {}
func (SessionError) isEvent()      {}
func (PermissionRequest) isEvent() {}

package bridge

import (
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/chatbridge/internal/schema"
)

// toolSet keeps running tool labels keyed by call id, in first-seen order.
type toolSet struct {
	order  []string
	labels map[string]string
}

func newToolSet() toolSet {
	return toolSet{labels: make(map[string]string)}
}

func (s *toolSet) set(callID, label string) {
	if _, ok := s.labels[callID]; !ok {
		s.order = append(s.order, callID)
	}
	s.labels[callID] = label
}

func (s *toolSet) remove(callID string) (string, bool) {
	label, ok := s.labels[callID]
	if !ok {
		return "", false
	}
	delete(s.labels, callID)
	for i, id := range s.order {
		if id == callID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return label, true
}

func (s *toolSet) clear() {
	s.order = nil
	s.labels = make(map[string]string)
}

func (s *toolSet) list() []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.labels[id])
	}
	return out
}

// activeSession is the in-memory state of one turn, from prompt submission
// to the terminal idle or error event.
type activeSession struct {
	sessionID string
	chatID    string
	adapter   schema.Channel

	// mu serializes mutation and flushes of this turn.
	mu        sync.Mutex
	buffer    string
	lastFlush time.Time
	messageID string // empty when the placeholder could not be sent
	running   toolSet
	completed []string
}

func newActiveSession(sessionID, chatID, messageID string, adapter schema.Channel) *activeSession {
	return &activeSession{
		sessionID: sessionID,
		chatID:    chatID,
		adapter:   adapter,
		messageID: messageID,
		running:   newToolSet(),
	}
}

// renderStatus lists running tools first, then completed ones, one per line.
func renderStatus(st *activeSession, texts Texts) string {
	var lines []string
	for _, label := range st.running.list() {
		lines = append(lines, texts.RunningMarker+" "+label)
	}
	for _, label := range st.completed {
		lines = append(lines, texts.DoneMarker+" "+label)
	}
	return strings.Join(lines, "\n")
}

package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crystaldolphin/chatbridge/internal/backend"
	"github.com/crystaldolphin/chatbridge/internal/bus"
)

// update is one edit observed by fakeChannel.
type update struct {
	ChatID    string
	MessageID string
	Status    string
	Body      string
	Plain     bool // UpdateText rather than UpdateStatusAndText
}

type fakeChannel struct {
	name string

	mu        sync.Mutex
	sent      []string
	updates   []update
	nextID    int
	sendErr   error
	updateErr error
}

func newFakeChannel(name string) *fakeChannel { return &fakeChannel{name: name} }

func (c *fakeChannel) Name() string                    { return c.name }
func (c *fakeChannel) Start(ctx context.Context) error { <-ctx.Done(); return nil }
func (c *fakeChannel) Stop(context.Context) error      { return nil }

func (c *fakeChannel) SendText(_ context.Context, chatID, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.nextID++
	return fmt.Sprintf("m%d", c.nextID), nil
}

func (c *fakeChannel) UpdateText(_ context.Context, chatID, messageID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, update{ChatID: chatID, MessageID: messageID, Body: text, Plain: true})
	return c.updateErr
}

func (c *fakeChannel) UpdateStatusAndText(_ context.Context, chatID, messageID, status, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, update{ChatID: chatID, MessageID: messageID, Status: status, Body: body})
	return c.updateErr
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeChannel) Updates() []update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]update(nil), c.updates...)
}

func (c *fakeChannel) LastUpdate() (update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.updates) == 0 {
		return update{}, false
	}
	return c.updates[len(c.updates)-1], true
}

type fakeStream struct {
	events chan backend.Event
	err    error // returned once events is closed; nil means ErrStreamClosed
}

func newFakeStream(events ...backend.Event) *fakeStream {
	ch := make(chan backend.Event, len(events)+16)
	for _, ev := range events {
		ch <- ev
	}
	return &fakeStream{events: ch}
}

func (s *fakeStream) Next() (backend.Event, error) {
	ev, ok := <-s.events
	if !ok {
		if s.err != nil {
			return nil, s.err
		}
		return nil, backend.ErrStreamClosed
	}
	return ev, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeBackend struct {
	mu          sync.Mutex
	nextSession string
	createErr   error
	promptErr   error
	titles      []string
	prompts     []backend.PromptRequest
	replies     []string
	replyValues []backend.PermissionReply

	streams    chan *fakeStream
	subscribed int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextSession: "s-new", streams: make(chan *fakeStream, 8)}
}

func (b *fakeBackend) CreateSession(_ context.Context, title string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.titles = append(b.titles, title)
	if b.createErr != nil {
		return "", b.createErr
	}
	return b.nextSession, nil
}

func (b *fakeBackend) Prompt(_ context.Context, req backend.PromptRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, req)
	return b.promptErr
}

func (b *fakeBackend) Subscribe(ctx context.Context) (backend.Stream, error) {
	select {
	case s := <-b.streams:
		b.mu.Lock()
		b.subscribed++
		b.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *fakeBackend) ReplyPermission(_ context.Context, requestID string, reply backend.PermissionReply) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, requestID)
	b.replyValues = append(b.replyValues, reply)
	return nil
}

func (b *fakeBackend) Titles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.titles...)
}

func (b *fakeBackend) Prompts() []backend.PromptRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.PromptRequest(nil), b.prompts...)
}

func (b *fakeBackend) Subscribed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]string
	touched map[string]int
	setErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]string{}, touched: map[string]int{}}
}

func (s *fakeStore) Get(channel bus.Channel, chatID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.records[bus.RoutingKey(channel, chatID)]
	return id, ok
}

func (s *fakeStore) Set(channel bus.Channel, chatID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[bus.RoutingKey(channel, chatID)] = sessionID
	return s.setErr
}

func (s *fakeStore) Touch(channel bus.Channel, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bus.RoutingKey(channel, chatID)
	if _, ok := s.records[key]; ok {
		s.touched[key]++
	}
	return nil
}

func (s *fakeStore) Touched(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched[key]
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock { return &manualClock{t: time.Unix(1_700_000_000, 0)} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/config/channel"
)

const (
	slackBlockLimit      = 3000
	slackTruncatedMarker = "\n\n_…(truncated)_"
)

// slackAPI is the part of the Slack Web API the channel calls.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackgo.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackgo.MsgOption) (string, string, string, error)
	AddReactionContext(ctx context.Context, name string, item slackgo.ItemRef) error
}

// SlackChannel implements Slack via Socket Mode. Replies are posted once
// and then updated in place.
type SlackChannel struct {
	Base
	cfg       *channel.SlackConfig
	api       slackAPI
	smClient  *socketmode.Client
	botUserID string

	mu      sync.Mutex
	threads map[string]string // channel -> thread ts of the latest inbound message
}

func NewSlackChannel(cfg *channel.SlackConfig, b bus.Bus) *SlackChannel {
	return &SlackChannel{
		Base:    NewBase(bus.ChannelSlack, b, nil), // Slack uses its own allow logic
		cfg:     cfg,
		threads: make(map[string]string),
	}
}

func (s *SlackChannel) Name() string { return bus.ChannelSlack.String() }

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		slog.Warn("slack: bot/app token not configured")
		<-ctx.Done()
		return ctx.Err()
	}

	webClient := slackgo.New(s.cfg.BotToken,
		slackgo.OptionAppLevelToken(s.cfg.AppToken))
	s.api = webClient

	// Resolve bot user ID.
	if resp, err := webClient.AuthTestContext(ctx); err == nil {
		s.botUserID = resp.UserID
		slog.Info("slack: connected", "bot_user_id", s.botUserID)
	} else {
		slog.Warn("slack: auth test failed", "err", err)
	}

	s.smClient = socketmode.New(webClient)

	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, evt)
		}
	}
}

func (s *SlackChannel) Stop(_ context.Context) error { return nil }

func (s *SlackChannel) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			s.smClient.Ack(*evt.Request)
		}
		cb, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if cb.InnerEvent.Type != "message" && cb.InnerEvent.Type != "app_mention" {
			return
		}
		s.handleInnerEvent(ctx, cb.InnerEvent.Type, innerEventFields(cb.InnerEvent.Data))
	}
}

// slackInbound holds the fields of a message or app_mention event.
type slackInbound struct {
	User        string
	Channel     string
	Text        string
	Subtype     string
	ChannelType string
	TS          string
	ThreadTS    string
}

// innerEventFields normalises the typed and untyped forms slack-go uses for
// inner event data.
func innerEventFields(data any) slackInbound {
	switch ev := data.(type) {
	case *slackevents.MessageEvent:
		return slackInbound{
			User: ev.User, Channel: ev.Channel, Text: ev.Text, Subtype: ev.SubType,
			ChannelType: ev.ChannelType, TS: ev.TimeStamp, ThreadTS: ev.ThreadTimeStamp,
		}
	case *slackevents.AppMentionEvent:
		return slackInbound{
			User: ev.User, Channel: ev.Channel, Text: ev.Text,
			TS: ev.TimeStamp, ThreadTS: ev.ThreadTimeStamp,
		}
	case map[string]any:
		str := func(k string) string {
			v, _ := ev[k].(string)
			return v
		}
		return slackInbound{
			User: str("user"), Channel: str("channel"), Text: str("text"), Subtype: str("subtype"),
			ChannelType: str("channel_type"), TS: str("ts"), ThreadTS: str("thread_ts"),
		}
	}
	return slackInbound{}
}

func (s *SlackChannel) handleInnerEvent(ctx context.Context, evType string, ev slackInbound) {
	if ev.Subtype != "" || ev.User == "" || ev.Channel == "" {
		return
	}
	if ev.User == s.botUserID {
		return
	}
	// Avoid double-processing mention + message events.
	if evType == "message" && ev.ChannelType != "im" && s.botUserID != "" &&
		strings.Contains(ev.Text, "<@"+s.botUserID+">") {
		return
	}

	if !s.isAllowedSlack(ev.User, ev.Channel, ev.ChannelType) {
		return
	}
	if ev.ChannelType != "im" && !s.shouldRespond(evType, ev.Text, ev.Channel) {
		return
	}

	text := s.stripMention(ev.Text)
	if text == "" {
		return
	}

	threadTS := ev.ThreadTS
	if s.cfg.ReplyInThread && threadTS == "" {
		threadTS = ev.TS
	}
	s.setThread(ev.Channel, ev.ChannelType, threadTS)

	// Best-effort reaction.
	if s.api != nil && ev.TS != "" && s.cfg.ReactEmoji != "" {
		_ = s.api.AddReactionContext(ctx, s.cfg.ReactEmoji, slackgo.ItemRef{
			Channel:   ev.Channel,
			Timestamp: ev.TS,
		})
	}

	s.HandleMessage(ctx, ev.User, ev.Channel, text, nil, map[string]any{
		"slack": map[string]any{
			"thread_ts":    threadTS,
			"channel_type": ev.ChannelType,
		},
	})
}

// setThread remembers where replies for a channel go. Direct messages are
// never threaded.
func (s *SlackChannel) setThread(channelID, channelType, threadTS string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channelType == "im" || threadTS == "" {
		delete(s.threads, channelID)
		return
	}
	s.threads[channelID] = threadTS
}

func (s *SlackChannel) thread(channelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[channelID]
}

func (s *SlackChannel) isAllowedSlack(user, channel, channelType string) bool {
	if channelType == "im" {
		if !s.cfg.DM.Enabled {
			return false
		}
		if s.cfg.DM.Policy == "allowlist" {
			for _, a := range s.cfg.DM.AllowFrom {
				if a == user {
					return true
				}
			}
			return false
		}
		return true
	}
	if s.cfg.GroupPolicy == "allowlist" {
		for _, a := range s.cfg.GroupAllowFrom {
			if a == channel {
				return true
			}
		}
		return false
	}
	return true
}

func (s *SlackChannel) shouldRespond(evType, text, channel string) bool {
	switch s.cfg.GroupPolicy {
	case "open":
		return true
	case "mention":
		if evType == "app_mention" {
			return true
		}
		return s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">")
	case "allowlist":
		for _, a := range s.cfg.GroupAllowFrom {
			if a == channel {
				return true
			}
		}
		return false
	}
	return false
}

func (s *SlackChannel) stripMention(text string) string {
	if s.botUserID == "" {
		return strings.TrimSpace(text)
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(s.botUserID) + `>\s*`)
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}

func (s *SlackChannel) SendText(ctx context.Context, chatID, text string) (string, error) {
	if s.api == nil {
		return "", fmt.Errorf("slack: not connected")
	}
	options := []slackgo.MsgOption{
		slackgo.MsgOptionText(truncateRunes(text, slackBlockLimit, slackTruncatedMarker), false),
	}
	if ts := s.thread(chatID); ts != "" {
		options = append(options, slackgo.MsgOptionTS(ts))
	}
	_, ts, err := s.api.PostMessageContext(ctx, chatID, options...)
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

func (s *SlackChannel) UpdateText(ctx context.Context, chatID, messageID, text string) error {
	return s.update(ctx, chatID, messageID,
		slackgo.MsgOptionText(truncateRunes(text, slackBlockLimit, slackTruncatedMarker), false))
}

func (s *SlackChannel) UpdateStatusAndText(ctx context.Context, chatID, messageID, status, body string) error {
	blocks, fallback := buildSlackBlocks(status, body)
	return s.update(ctx, chatID, messageID,
		slackgo.MsgOptionText(fallback, false),
		slackgo.MsgOptionBlocks(blocks...))
}

func (s *SlackChannel) update(ctx context.Context, chatID, messageID string, options ...slackgo.MsgOption) error {
	if messageID == "" {
		return nil
	}
	if s.api == nil {
		return fmt.Errorf("slack: not connected")
	}
	if _, _, _, err := s.api.UpdateMessageContext(ctx, chatID, messageID, options...); err != nil {
		return fmt.Errorf("slack: update message %s: %w", messageID, err)
	}
	return nil
}

// buildSlackBlocks renders status and body as separate mrkdwn sections,
// each within the section text limit. The fallback text is used by
// notifications and clients without block support.
func buildSlackBlocks(status, body string) ([]slackgo.Block, string) {
	var (
		blocks []slackgo.Block
		parts  []string
	)
	add := func(text string) {
		text = truncateRunes(text, slackBlockLimit, slackTruncatedMarker)
		parts = append(parts, text)
		blocks = append(blocks, slackgo.NewSectionBlock(
			slackgo.NewTextBlockObject(slackgo.MarkdownType, text, false, false), nil, nil))
	}
	if status != "" {
		add(status)
	}
	if body != "" {
		add(body)
	}
	if len(blocks) == 0 {
		add(emptyCardText)
	}
	return blocks, strings.Join(parts, "\n\n")
}

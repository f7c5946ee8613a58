package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/config/channel"
)

const (
	// feishuCardLimit leaves headroom under the ~30KB interactive card cap.
	feishuCardLimit       = 28 * 1024
	feishuTruncatedMarker = "\n\n*(内容已截断，超出飞书卡片限制)*"
	feishuReconnectDelay  = 5 * time.Second
)

var feishuMentionRe = regexp.MustCompile(`@\S+`)

// FeishuChannel connects to Feishu/Lark via WebSocket long connection and
// replies with interactive cards that are patched in place.
type FeishuChannel struct {
	Base
	cfg        *channel.FeishuConfig
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer

	token    string
	tokenMu  sync.Mutex
	tokenExp time.Time

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewFeishuChannel(cfg *channel.FeishuConfig, b bus.Bus) *FeishuChannel {
	base := strings.TrimRight(cfg.Domain, "/")
	if base == "" {
		base = channel.DefaultFeishuDomain
	}
	return &FeishuChannel{
		Base:       NewBase(bus.ChannelFeishu, b, cfg.AllowFrom),
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dialer:     websocket.DefaultDialer,
	}
}

func (f *FeishuChannel) Name() string { return bus.ChannelFeishu.String() }

func (f *FeishuChannel) Start(ctx context.Context) error {
	if f.cfg.AppID == "" || f.cfg.AppSecret == "" {
		slog.Warn("feishu: appId or appSecret not configured")
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		err := f.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("feishu: connection lost, reconnecting", "err", err, "delay", feishuReconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(feishuReconnectDelay):
		}
	}
}

// Stop closes the event socket. Start then returns once ctx is cancelled.
func (f *FeishuChannel) Stop(_ context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

func (f *FeishuChannel) connectOnce(ctx context.Context) error {
	wsURL, err := f.getWebSocketURL(ctx)
	if err != nil {
		return err
	}

	conn, _, err := f.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("feishu: dial: %w", err)
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer f.Stop(ctx) //nolint:errcheck
	slog.Info("feishu: connected")

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "ping":
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)); err != nil {
				return err
			}
		case "event":
			go f.handleEvent(ctx, frame.Data)
		}
	}
}

func (f *FeishuChannel) getWebSocketURL(ctx context.Context) (string, error) {
	var result struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := f.call(ctx, http.MethodPost, "/open-apis/event/v1/ws/endpoint",
		map[string]any{"app_id": f.cfg.AppID}, &result); err != nil {
		return "", fmt.Errorf("feishu: get ws url: %w", err)
	}
	return result.Data.URL, nil
}

func (f *FeishuChannel) getAccessToken(ctx context.Context) (string, error) {
	f.tokenMu.Lock()
	defer f.tokenMu.Unlock()
	if f.token != "" && time.Now().Before(f.tokenExp) {
		return f.token, nil
	}
	data, _ := json.Marshal(map[string]string{"app_id": f.cfg.AppID, "app_secret": f.cfg.AppSecret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var result struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("feishu: decode token response: %w", err)
	}
	if result.TenantAccessToken == "" {
		return "", fmt.Errorf("feishu: get token failed code=%d msg=%s", result.Code, result.Msg)
	}
	f.token = result.TenantAccessToken
	f.tokenExp = time.Now().Add(time.Duration(result.Expire-60) * time.Second)
	return f.token, nil
}

// call performs an authorised open-apis request and decodes the response
// into out. A non-zero "code" in the envelope is returned as an error.
func (f *FeishuChannel) call(ctx context.Context, method, path string, body, out any) error {
	token, err := f.getAccessToken(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("code=%d msg=%s", envelope.Code, envelope.Msg)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// feishuInbound is the subset of an im.message.receive_v1 event the bridge uses.
type feishuInbound struct {
	SenderID  string
	ChatID    string
	ChatType  string
	MessageID string
	Text      string
}

// parseFeishuEvent extracts a text message from an event payload. It
// reports false for events the bridge does not answer: other event types,
// bot senders, non-text messages, and unmentioned group messages when
// requireMention is set.
func parseFeishuEvent(data []byte, requireMention bool) (feishuInbound, bool) {
	var event struct {
		Header struct {
			EventType string `json:"event_type"`
		} `json:"header"`
		Event struct {
			Message struct {
				MessageID   string            `json:"message_id"`
				ChatID      string            `json:"chat_id"`
				ChatType    string            `json:"chat_type"`
				Content     string            `json:"content"`
				MessageType string            `json:"message_type"`
				Mentions    []json.RawMessage `json:"mentions"`
			} `json:"message"`
			Sender struct {
				SenderID struct {
					OpenID string `json:"open_id"`
				} `json:"sender_id"`
				SenderType string `json:"sender_type"`
			} `json:"sender"`
		} `json:"event"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return feishuInbound{}, false
	}
	if event.Header.EventType != "im.message.receive_v1" {
		return feishuInbound{}, false
	}
	if event.Event.Sender.SenderType == "bot" {
		return feishuInbound{}, false
	}
	msg := event.Event.Message
	if msg.MessageType != "text" {
		return feishuInbound{}, false
	}

	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(msg.Content), &content); err != nil {
		return feishuInbound{}, false
	}
	text := strings.TrimSpace(content.Text)
	if text == "" {
		return feishuInbound{}, false
	}

	chatType := msg.ChatType
	if chatType == "" {
		chatType = "p2p"
	}
	if requireMention && chatType != "p2p" {
		if len(msg.Mentions) == 0 {
			return feishuInbound{}, false
		}
		text = strings.TrimSpace(feishuMentionRe.ReplaceAllString(text, ""))
		if text == "" {
			return feishuInbound{}, false
		}
	}

	return feishuInbound{
		SenderID:  event.Event.Sender.SenderID.OpenID,
		ChatID:    msg.ChatID,
		ChatType:  chatType,
		MessageID: msg.MessageID,
		Text:      text,
	}, true
}

func (f *FeishuChannel) handleEvent(ctx context.Context, data json.RawMessage) {
	in, ok := parseFeishuEvent(data, f.cfg.RequireMention)
	if !ok {
		return
	}
	f.HandleMessage(ctx, in.SenderID, in.ChatID, in.Text, nil, map[string]any{
		"message_id": in.MessageID,
		"chat_type":  in.ChatType,
	})
}

type feishuElement struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type feishuCard struct {
	Schema string `json:"schema"`
	Body   struct {
		Elements []feishuElement `json:"elements"`
	} `json:"body"`
}

func newFeishuCard(elements ...feishuElement) feishuCard {
	c := feishuCard{Schema: "2.0"}
	c.Body.Elements = elements
	return c
}

// buildCard renders text as a single markdown element.
func buildCard(text string) feishuCard {
	return newFeishuCard(feishuElement{Tag: "markdown", Content: text})
}

// buildSplitCard renders status and body as separate markdown elements so
// neither affects the other's formatting.
func buildSplitCard(status, body string) feishuCard {
	var elements []feishuElement
	if status != "" {
		elements = append(elements, feishuElement{Tag: "markdown", Content: status})
	}
	if body != "" {
		elements = append(elements, feishuElement{Tag: "markdown", Content: body})
	}
	if len(elements) == 0 {
		elements = append(elements, feishuElement{Tag: "markdown", Content: emptyCardText})
	}
	return newFeishuCard(elements...)
}

func truncateFeishu(text string) string {
	return truncateBytes(text, feishuCardLimit, feishuTruncatedMarker)
}

func (f *FeishuChannel) SendText(ctx context.Context, chatID, text string) (string, error) {
	content, err := json.Marshal(buildCard(truncateFeishu(text)))
	if err != nil {
		return "", err
	}
	var result struct {
		Data struct {
			MessageID string `json:"message_id"`
		} `json:"data"`
	}
	body := map[string]any{
		"receive_id": chatID,
		"msg_type":   "interactive",
		"content":    string(content),
	}
	if err := f.call(ctx, http.MethodPost, "/open-apis/im/v1/messages?receive_id_type=chat_id", body, &result); err != nil {
		return "", fmt.Errorf("feishu: send card: %w", err)
	}
	return result.Data.MessageID, nil
}

func (f *FeishuChannel) UpdateText(ctx context.Context, _, messageID, text string) error {
	return f.patchCard(ctx, messageID, buildCard(truncateFeishu(text)))
}

func (f *FeishuChannel) UpdateStatusAndText(ctx context.Context, _, messageID, status, body string) error {
	return f.patchCard(ctx, messageID, buildSplitCard(status, truncateFeishu(body)))
}

func (f *FeishuChannel) patchCard(ctx context.Context, messageID string, card feishuCard) error {
	if messageID == "" {
		return nil
	}
	content, err := json.Marshal(card)
	if err != nil {
		return err
	}
	path := "/open-apis/im/v1/messages/" + url.PathEscape(messageID)
	if err := f.call(ctx, http.MethodPatch, path, map[string]any{"content": string(content)}, nil); err != nil {
		return fmt.Errorf("feishu: patch card %s: %w", messageID, err)
	}
	return nil
}

package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/config/channel"
)

const (
	telegramTextLimit       = 4096
	telegramTruncatedMarker = "\n\n…(truncated)"
)

var errTelegramNotRunning = errors.New("telegram: bot not running")

// TelegramChannel implements the Telegram bot via long polling. Replies are
// sent once and then edited in place.
type TelegramChannel struct {
	Base
	cfg *channel.TelegramConfig
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(cfg *channel.TelegramConfig, b bus.Bus) *TelegramChannel {
	return &TelegramChannel{
		Base: NewBase(bus.ChannelTelegram, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (t *TelegramChannel) Name() string { return bus.ChannelTelegram.String() }

func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}
	client := http.DefaultClient
	if t.cfg.Proxy != "" {
		proxyURL, err := url.Parse(t.cfg.Proxy)
		if err != nil {
			return fmt.Errorf("telegram: invalid proxy %q: %w", t.cfg.Proxy, err)
		}
		client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	slog.Info("telegram: connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go t.handleUpdate(ctx, update)
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (t *TelegramChannel) Stop(_ context.Context) error {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}

func (t *TelegramChannel) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = senderID + "|" + msg.From.UserName
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	content := msg.Text
	if msg.Caption != "" {
		content = msg.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}
	attachments := t.attachments(msg)

	metadata := map[string]any{
		"message_id": msg.MessageID,
		"user_id":    msg.From.ID,
		"username":   msg.From.UserName,
		"first_name": msg.From.FirstName,
		"is_group":   msg.Chat.Type != "private",
	}
	if t.HandleMessage(ctx, senderID, chatID, content, attachments, metadata) {
		_, _ = t.bot.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping))
	}
}

// attachments resolves download links for the largest photo and any document.
func (t *TelegramChannel) attachments(msg *tgbotapi.Message) []bus.Attachment {
	var out []bus.Attachment
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		if link, err := t.bot.GetFileDirectURL(photo.FileID); err == nil {
			out = append(out, bus.Attachment{URL: link, Mime: "image/jpeg", Name: photo.FileUniqueID + ".jpg"})
		}
	}
	if msg.Document != nil {
		if link, err := t.bot.GetFileDirectURL(msg.Document.FileID); err == nil {
			out = append(out, bus.Attachment{URL: link, Mime: msg.Document.MimeType, Name: msg.Document.FileName})
		}
	}
	return out
}

func (t *TelegramChannel) SendText(_ context.Context, chatID, text string) (string, error) {
	if t.bot == nil {
		return "", errTelegramNotRunning
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	text = truncateRunes(text, telegramTextLimit, telegramTruncatedMarker)

	m := tgbotapi.NewMessage(id, markdownToTelegramHTML(text))
	m.ParseMode = tgbotapi.ModeHTML
	sent, err := t.bot.Send(m)
	if err != nil {
		// Fallback to plain text.
		sent, err = t.bot.Send(tgbotapi.NewMessage(id, text))
		if err != nil {
			return "", fmt.Errorf("telegram: send: %w", err)
		}
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (t *TelegramChannel) UpdateText(_ context.Context, chatID, messageID, text string) error {
	return t.edit(chatID, messageID, truncateRunes(text, telegramTextLimit, telegramTruncatedMarker))
}

func (t *TelegramChannel) UpdateStatusAndText(_ context.Context, chatID, messageID, status, body string) error {
	return t.edit(chatID, messageID, joinStatusBody(status, body, telegramTextLimit, telegramTruncatedMarker))
}

func (t *TelegramChannel) edit(chatID, messageID, text string) error {
	if messageID == "" {
		return nil
	}
	if t.bot == nil {
		return errTelegramNotRunning
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q", messageID)
	}

	e := tgbotapi.NewEditMessageText(id, msgID, markdownToTelegramHTML(text))
	e.ParseMode = tgbotapi.ModeHTML
	_, err = t.bot.Send(e)
	if err != nil && !isNotModified(err) {
		_, err = t.bot.Send(tgbotapi.NewEditMessageText(id, msgID, text))
	}
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("telegram: edit %s: %w", messageID, err)
	}
	return nil
}

// isNotModified reports Telegram's rejection of an edit with identical content.
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat_id: %s", s)
	}
	return id, nil
}

var (
	reTGCodeBlock  = regexp.MustCompile("(?s)```[\\w]*\\n?([\\s\\S]*?)```")
	reTGInlineCode = regexp.MustCompile("`([^`]+)`")
	reTGHeader     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reTGBlockquote = regexp.MustCompile(`(?m)^>\s*(.*)$`)
	reTGLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reTGBold1      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reTGBold2      = regexp.MustCompile(`__(.+?)__`)
	reTGItalic     = regexp.MustCompile(`(?:^|[^a-zA-Z0-9])_([^_]+)_(?:[^a-zA-Z0-9]|$)`)
	reTGStrike     = regexp.MustCompile(`~~(.+?)~~`)
	reTGBullet     = regexp.MustCompile(`(?m)^[-*]\s+`)
)

func markdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	// 1. Extract code blocks.
	var codeBlocks []string
	text = reTGCodeBlock.ReplaceAllStringFunc(text, func(m string) string {
		groups := reTGCodeBlock.FindStringSubmatch(m)
		codeBlocks = append(codeBlocks, groups[1])
		return fmt.Sprintf("\x00CB%d\x00", len(codeBlocks)-1)
	})

	// 2. Extract inline code.
	var inlineCodes []string
	text = reTGInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		groups := reTGInlineCode.FindStringSubmatch(m)
		inlineCodes = append(inlineCodes, groups[1])
		return fmt.Sprintf("\x00IC%d\x00", len(inlineCodes)-1)
	})

	// 3. Strip headers.
	text = reTGHeader.ReplaceAllString(text, "$1")
	// 4. Strip blockquotes.
	text = reTGBlockquote.ReplaceAllString(text, "$1")

	// 5. HTML escape.
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")

	// 6. Links.
	text = reTGLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	// 7. Bold.
	text = reTGBold1.ReplaceAllString(text, "<b>$1</b>")
	text = reTGBold2.ReplaceAllString(text, "<b>$1</b>")
	// 8. Italic.
	text = reTGItalic.ReplaceAllString(text, "<i>$1</i>")
	// 9. Strikethrough.
	text = reTGStrike.ReplaceAllString(text, "<s>$1</s>")
	// 10. Bullet lists.
	text = reTGBullet.ReplaceAllString(text, "• ")

	// 11. Restore inline code.
	for i, code := range inlineCodes {
		escaped := htmlEscape(code)
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00IC%d\x00", i),
			"<code>"+escaped+"</code>")
	}
	// 12. Restore code blocks.
	for i, code := range codeBlocks {
		escaped := htmlEscape(code)
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00CB%d\x00", i),
			"<pre><code>"+escaped+"</code></pre>")
	}
	return text
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

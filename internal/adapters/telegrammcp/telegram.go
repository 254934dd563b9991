// Package telegrammcp exposes Telegram messaging tools backed by the Bot API.
package telegrammcp

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/localmcp/localmcp/internal/adapter"
)

// TokenFile is the default credential file next to the server binary.
const TokenFile = "telegram_token.json"

// Bot is the subset of the Telegram Bot API the adapter calls.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMembersCount(config tgbotapi.ChatMemberCountConfig) (int, error)
}

// Service implements the Telegram tools. The bot is created on first use and
// kept for the life of the service, so the server can start before its token
// file exists.
type Service struct {
	mu     sync.Mutex
	bot    Bot
	newBot func() (Bot, error)
}

// New returns a Service reading its bot token from tokenPath.
func New(tokenPath string) *Service {
	return &Service{
		newBot: func() (Bot, error) {
			token, err := adapter.LoadToken(tokenPath, "Telegram")
			if err != nil {
				return nil, err
			}
			bot, err := tgbotapi.NewBotAPI(token)
			if err != nil {
				return nil, fmt.Errorf("create telegram bot: %w", err)
			}
			return bot, nil
		},
	}
}

// NewWithBot returns a Service using a fixed bot. Used in tests.
func NewWithBot(b Bot) *Service {
	return &Service{bot: b}
}

func (s *Service) client() (Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil {
		return s.bot, nil
	}
	bot, err := s.newBot()
	if err != nil {
		return nil, err
	}
	s.bot = bot
	return bot, nil
}

// applyChat resolves a chat reference into the config: numeric references are
// chat IDs, anything else is treated as a channel username.
func applyChat(base *tgbotapi.BaseChat, chat string) {
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		base.ChatID = id
		return
	}
	base.ChannelUsername = chat
}

// SendResult is the response of telegram_send_message and telegram_send_file.
type SendResult struct {
	Status    string `json:"status"`
	MessageID int    `json:"message_id"`
	Date      string `json:"date"`
}

func sendResult(msg tgbotapi.Message) *SendResult {
	return &SendResult{
		Status:    "success",
		MessageID: msg.MessageID,
		Date:      time.Unix(int64(msg.Date), 0).UTC().Format(time.RFC3339),
	}
}

// SendMessage sends text to a chat, optionally as a reply and with a parse
// mode (Markdown, MarkdownV2, HTML).
func (s *Service) SendMessage(chatID, text string, replyTo int, parseMode string) (*SendResult, error) {
	bot, err := s.client()
	if err != nil {
		return nil, err
	}

	msg := tgbotapi.NewMessage(0, text)
	applyChat(&msg.BaseChat, chatID)
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}
	if parseMode != "" {
		msg.ParseMode = parseMode
	}

	sent, err := bot.Send(msg)
	if err != nil {
		return nil, fmt.Errorf("Error sending message: %w", err)
	}

	slog.Info("message sent", slog.String("chat", chatID))
	return sendResult(sent), nil
}

// ChatInfo is the response of telegram_get_chat. Absent attributes are null
// rather than omitted.
type ChatInfo struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Title       *string `json:"title"`
	Username    *string `json:"username"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Description *string `json:"description"`
	InviteLink  *string `json:"invite_link"`
	MemberCount *int    `json:"member_count"`
}

// GetChat fetches chat metadata. The member count is best-effort: private
// chats and restricted bots do not expose it.
func (s *Service) GetChat(chatID string) (*ChatInfo, error) {
	bot, err := s.client()
	if err != nil {
		return nil, err
	}

	cfg := tgbotapi.ChatInfoConfig{}
	applyChatConfig(&cfg.ChatConfig, chatID)

	chat, err := bot.GetChat(cfg)
	if err != nil {
		return nil, fmt.Errorf("Error getting chat: %w", err)
	}

	info := &ChatInfo{
		ID:          chat.ID,
		Type:        chat.Type,
		Title:       strPtr(chat.Title),
		Username:    strPtr(chat.UserName),
		FirstName:   strPtr(chat.FirstName),
		LastName:    strPtr(chat.LastName),
		Description: strPtr(chat.Description),
		InviteLink:  strPtr(chat.InviteLink),
	}

	countCfg := tgbotapi.ChatMemberCountConfig{}
	applyChatConfig(&countCfg.ChatConfig, chatID)
	if count, err := bot.GetChatMembersCount(countCfg); err == nil {
		info.MemberCount = &count
	} else {
		slog.Debug("member count unavailable", slog.String("chat", chatID), slog.Any("error", err))
	}

	slog.Info("retrieved chat info", slog.String("chat", chatID))
	return info, nil
}

func applyChatConfig(cfg *tgbotapi.ChatConfig, chat string) {
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		cfg.ChatID = id
		return
	}
	cfg.SuperGroupUsername = chat
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SendFile sends a local file to a chat, choosing the Telegram media type
// from the file extension. Unknown extensions go as documents.
func (s *Service) SendFile(chatID, path, caption string) (*SendResult, error) {
	bot, err := s.client()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		return nil, adapter.Errorf(http.StatusBadRequest, "File not found: %s", path)
	}

	file := tgbotapi.FilePath(path)
	var cfg tgbotapi.Chattable
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		c := tgbotapi.NewPhoto(0, file)
		c.Caption = caption
		applyChat(&c.BaseChat, chatID)
		cfg = c
	case ".mp4", ".avi", ".mov":
		c := tgbotapi.NewVideo(0, file)
		c.Caption = caption
		applyChat(&c.BaseChat, chatID)
		cfg = c
	case ".mp3", ".ogg", ".wav":
		c := tgbotapi.NewAudio(0, file)
		c.Caption = caption
		applyChat(&c.BaseChat, chatID)
		cfg = c
	default:
		c := tgbotapi.NewDocument(0, file)
		c.Caption = caption
		applyChat(&c.BaseChat, chatID)
		cfg = c
	}

	sent, err := bot.Send(cfg)
	if err != nil {
		return nil, fmt.Errorf("Error sending file: %w", err)
	}

	slog.Info("file sent", slog.String("chat", chatID), slog.String("file", path))
	return sendResult(sent), nil
}

// HistoryResult is the response of telegram_get_chat_history.
type HistoryResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Messages []any  `json:"messages"`
}

// GetChatHistory reports that history is unavailable. The Bot API has no
// endpoint for reading past messages; a client app or a message store would
// be needed.
func (s *Service) GetChatHistory(chatID string, limit int) (*HistoryResult, error) {
	slog.Warn("chat history retrieval is limited in the Telegram Bot API",
		slog.String("chat", chatID), slog.Int("limit", limit))
	return &HistoryResult{
		Status:   "partial",
		Message:  "Chat history retrieval is limited in the Telegram Bot API. Consider using the Telegram API directly or implementing a message database.",
		Messages: []any{},
	}, nil
}

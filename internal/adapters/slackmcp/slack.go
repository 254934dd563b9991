// Package slackmcp exposes Slack messaging tools backed by the Slack Web API.
package slackmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rusq/slack"

	"github.com/localmcp/localmcp/internal/adapter"
)

// TokenFile is the default credential file next to the server binary.
const TokenFile = "slack_token.json"

// Client is the subset of the Slack Web API the adapter calls.
type Client interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	CreateConversationContext(ctx context.Context, params slack.CreateConversationParams) (*slack.Channel, error)
	InviteUsersToConversationContext(ctx context.Context, channelID string, users ...string) (*slack.Channel, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	SearchMessagesContext(ctx context.Context, query string, params slack.SearchParameters) (*slack.SearchMessages, error)
}

// Service implements the Slack tools. The client is constructed per call so
// the server can start before its token file exists; the credential error
// tells the operator what to create.
type Service struct {
	newClient func(ctx context.Context) (Client, error)
}

// New returns a Service reading its bot token from tokenPath.
func New(tokenPath string) *Service {
	return &Service{
		newClient: func(ctx context.Context) (Client, error) {
			token, err := adapter.LoadToken(tokenPath, "Slack")
			if err != nil {
				return nil, err
			}
			return slack.New(token), nil
		},
	}
}

// NewWithClient returns a Service using a fixed client. Used in tests.
func NewWithClient(c Client) *Service {
	return &Service{
		newClient: func(ctx context.Context) (Client, error) { return c, nil },
	}
}

// SendResult is the response of slack_send_message.
type SendResult struct {
	Status  string `json:"status"`
	TS      string `json:"ts"`
	Channel string `json:"channel"`
}

// SendMessage posts text to a channel, optionally threaded and with rich
// blocks passed through as raw JSON.
func (s *Service) SendMessage(ctx context.Context, channel, text, threadTS string, blocks []map[string]any) (*SendResult, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if len(blocks) > 0 {
		raw, err := json.Marshal(blocks)
		if err != nil {
			return nil, fmt.Errorf("Error sending message: %w", err)
		}
		var bb slack.Blocks
		if err := json.Unmarshal(raw, &bb); err != nil {
			return nil, fmt.Errorf("Error sending message: invalid blocks: %w", err)
		}
		opts = append(opts, slack.MsgOptionBlocks(bb.BlockSet...))
	}

	channelID, ts, err := client.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error sending message: %w", err)
	}

	slog.Info("message sent", slog.String("channel", channel))
	return &SendResult{Status: "success", TS: ts, Channel: channelID}, nil
}

// CreateResult is the response of slack_create_channel.
type CreateResult struct {
	Status    string `json:"status"`
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// CreateChannel creates a channel and invites the given users. Invite
// failures are logged and skipped so one missing user does not fail the
// whole call.
func (s *Service) CreateChannel(ctx context.Context, name string, isPrivate bool, userIDs []string) (*CreateResult, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := client.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   isPrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating channel: %w", err)
	}

	for _, userID := range userIDs {
		if _, err := client.InviteUsersToConversationContext(ctx, ch.ID, userID); err != nil {
			slog.Warn("could not invite user",
				slog.String("user", userID),
				slog.Any("error", err))
		}
	}

	slog.Info("channel created", slog.String("name", name), slog.String("id", ch.ID))
	return &CreateResult{Status: "success", ChannelID: ch.ID, Name: name, IsPrivate: isPrivate}, nil
}

// ChannelInfo is one entry in the slack_list_channels response.
type ChannelInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	IsArchived bool   `json:"is_archived"`
	NumMembers int    `json:"num_members"`
	Topic      string `json:"topic"`
	Purpose    string `json:"purpose"`
}

// ChannelList is the response of slack_list_channels.
type ChannelList struct {
	Channels []ChannelInfo `json:"channels"`
}

// ListChannels walks the full cursor-paginated channel listing.
func (s *Service) ListChannels(ctx context.Context) (*ChannelList, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	out := &ChannelList{Channels: []ChannelInfo{}}
	params := &slack.GetConversationsParameters{}
	for {
		channels, next, err := client.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("Error listing channels: %w", err)
		}
		for _, ch := range channels {
			out.Channels = append(out.Channels, ChannelInfo{
				ID:         ch.ID,
				Name:       ch.Name,
				IsPrivate:  ch.IsPrivate,
				IsArchived: ch.IsArchived,
				NumMembers: ch.NumMembers,
				Topic:      ch.Topic.Value,
				Purpose:    ch.Purpose.Value,
			})
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}

	slog.Info("listed channels", slog.Int("count", len(out.Channels)))
	return out, nil
}

// SearchMatch is one entry in the slack_search response.
type SearchMatch struct {
	TS        string        `json:"ts"`
	Channel   SearchChannel `json:"channel"`
	User      string        `json:"user"`
	Username  string        `json:"username"`
	Text      string        `json:"text"`
	Permalink string        `json:"permalink"`
}

// SearchChannel identifies the channel a search match was found in.
type SearchChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResult is the response of slack_search.
type SearchResult struct {
	Messages []SearchMatch `json:"messages"`
	Total    int           `json:"total"`
}

// Search runs a message search. Zero-valued parameters fall back to the
// defaults: 20 results, sorted by score, descending.
func (s *Service) Search(ctx context.Context, query string, count int, sort, sortDir string) (*SearchResult, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	if count <= 0 {
		count = 20
	}
	if sort == "" {
		sort = "score"
	}
	if sortDir == "" {
		sortDir = "desc"
	}

	sm, err := client.SearchMessagesContext(ctx, query, slack.SearchParameters{
		Sort:          sort,
		SortDirection: sortDir,
		Count:         count,
	})
	if err != nil {
		return nil, fmt.Errorf("Error searching messages: %w", err)
	}

	out := &SearchResult{Messages: []SearchMatch{}, Total: sm.Total}
	for _, match := range sm.Matches {
		out.Messages = append(out.Messages, SearchMatch{
			TS:        match.Timestamp,
			Channel:   SearchChannel{ID: match.Channel.ID, Name: match.Channel.Name},
			User:      match.User,
			Username:  match.Username,
			Text:      match.Text,
			Permalink: match.Permalink,
		})
	}

	slog.Info("search complete", slog.String("query", query), slog.Int("matches", len(out.Messages)))
	return out, nil
}

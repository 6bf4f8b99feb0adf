package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"gitbridge/internal/config"
)

// Sentinel errors for Discord API failures.
var (
	ErrDiscordUnreachable = errors.New("discord unreachable")
	ErrForbidden          = errors.New("discord permission denied")
	ErrNotFound           = errors.New("discord resource not found")
)

// Channel type constants from the Discord API.
const (
	ChannelTypeVoice    = 2
	ChannelTypeCategory = 4
)

// Channel is a guild channel. Categories are channels of type 4; a child
// channel points at its category via ParentID.
type Channel struct {
	ID       string  `json:"id"`
	Type     int     `json:"type"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

// Role is a guild role.
type Role struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   int    `json:"color"`
	Managed bool   `json:"managed"`
}

// Member is a guild member with the IDs of the roles currently assigned.
type Member struct {
	User struct {
		ID  string `json:"id"`
		Bot bool   `json:"bot"`
	} `json:"user"`
	RoleIDs []string `json:"roles"`
}

// CreateChannelParams are the fields sent when creating a channel.
type CreateChannelParams struct {
	Name     string  `json:"name"`
	Type     int     `json:"type"`
	ParentID *string `json:"parent_id,omitempty"`
}

// Client is the guild channel/role surface the reconciler converges
// against. Every method is one remote call and individually fallible.
type Client interface {
	GuildChannels(ctx context.Context, guildID string) ([]Channel, error)
	CreateChannel(ctx context.Context, guildID string, params CreateChannelParams) (*Channel, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	DeleteChannel(ctx context.Context, channelID string) error

	GuildRoles(ctx context.Context, guildID string) ([]Role, error)
	CreateRole(ctx context.Context, guildID, name string, color int) (*Role, error)
	DeleteRole(ctx context.Context, guildID, roleID string) error

	GuildMembers(ctx context.Context, guildID string) ([]Member, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error
}

// HTTPClient implements Client against the Discord REST API with a bot token.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a new Discord HTTP client.
func NewHTTPClient(cfg config.DiscordConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.BotToken,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) GuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	var channels []Channel
	err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &channels)
	return channels, err
}

func (c *HTTPClient) CreateChannel(ctx context.Context, guildID string, params CreateChannelParams) (*Channel, error) {
	var ch Channel
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/channels", params, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *HTTPClient) RenameChannel(ctx context.Context, channelID, name string) error {
	return c.do(ctx, http.MethodPatch, "/channels/"+channelID, map[string]string{"name": name}, nil)
}

func (c *HTTPClient) DeleteChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID, nil, nil)
}

func (c *HTTPClient) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/roles", nil, &roles)
	return roles, err
}

func (c *HTTPClient) CreateRole(ctx context.Context, guildID, name string, color int) (*Role, error) {
	var role Role
	params := map[string]any{"name": name, "color": color}
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/roles", params, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *HTTPClient) DeleteRole(ctx context.Context, guildID, roleID string) error {
	return c.do(ctx, http.MethodDelete, "/guilds/"+guildID+"/roles/"+roleID, nil, nil)
}

// GuildMembers pages through the member list 1000 at a time. Requires the
// guild members privileged intent on the bot.
func (c *HTTPClient) GuildMembers(ctx context.Context, guildID string) ([]Member, error) {
	var all []Member
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", "1000")
		if after != "" {
			q.Set("after", after)
		}

		var page []Member
		if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/members?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < 1000 {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *HTTPClient) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.do(ctx, http.MethodPut, "/guilds/"+guildID+"/members/"+userID+"/roles/"+roleID, nil, nil)
}

func (c *HTTPClient) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.do(ctx, http.MethodDelete, "/guilds/"+guildID+"/members/"+userID+"/roles/"+roleID, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDiscordUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrForbidden, method, path)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("discord returned HTTP %d for %s %s: %s", resp.StatusCode, method, path, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

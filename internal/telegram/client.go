// Package telegram is a thin Bot API client covering the calls the relay
// makes. Failures reported by the platform (ok=false) come back as *APIError
// so callers can branch on the description text.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		token:   token,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		// The API answers errors with a JSON envelope too; anything else is
		// a transport-level problem.
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !env.OK {
		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

type SendMessageParams struct {
	ChatID           int64                 `json:"chat_id"`
	MessageThreadID  int64                 `json:"message_thread_id,omitempty"`
	Text             string                `json:"text"`
	ParseMode        string                `json:"parse_mode,omitempty"`
	ReplyToMessageID int64                 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", p, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type ForwardMessageParams struct {
	ChatID          int64 `json:"chat_id"`
	MessageThreadID int64 `json:"message_thread_id,omitempty"`
	FromChatID      int64 `json:"from_chat_id"`
	MessageID       int64 `json:"message_id"`
}

func (c *Client) ForwardMessage(ctx context.Context, p ForwardMessageParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "forwardMessage", p, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type CopyMessageParams struct {
	ChatID          int64 `json:"chat_id"`
	MessageThreadID int64 `json:"message_thread_id,omitempty"`
	FromChatID      int64 `json:"from_chat_id"`
	MessageID       int64 `json:"message_id"`
}

func (c *Client) CopyMessage(ctx context.Context, p CopyMessageParams) error {
	return c.call(ctx, "copyMessage", p, nil)
}

type SendMediaGroupParams struct {
	ChatID          int64        `json:"chat_id"`
	MessageThreadID int64        `json:"message_thread_id,omitempty"`
	Media           []InputMedia `json:"media"`
}

func (c *Client) SendMediaGroup(ctx context.Context, p SendMediaGroupParams) error {
	return c.call(ctx, "sendMediaGroup", p, nil)
}

type AnswerCallbackQueryParams struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, p AnswerCallbackQueryParams) error {
	return c.call(ctx, "answerCallbackQuery", p, nil)
}

type EditMessageTextParams struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (c *Client) EditMessageText(ctx context.Context, p EditMessageTextParams) error {
	return c.call(ctx, "editMessageText", p, nil)
}

type createForumTopicParams struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
}

func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (*ForumTopic, error) {
	var topic ForumTopic
	if err := c.call(ctx, "createForumTopic", createForumTopicParams{ChatID: chatID, Name: name}, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

type forumTopicParams struct {
	ChatID          int64 `json:"chat_id"`
	MessageThreadID int64 `json:"message_thread_id"`
}

func (c *Client) CloseForumTopic(ctx context.Context, chatID, threadID int64) error {
	return c.call(ctx, "closeForumTopic", forumTopicParams{ChatID: chatID, MessageThreadID: threadID}, nil)
}

func (c *Client) ReopenForumTopic(ctx context.Context, chatID, threadID int64) error {
	return c.call(ctx, "reopenForumTopic", forumTopicParams{ChatID: chatID, MessageThreadID: threadID}, nil)
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls for updates and returns the next offset to ask for.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	err := c.call(reqCtx, "getUpdates", getUpdatesParams{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

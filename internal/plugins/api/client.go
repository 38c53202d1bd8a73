package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/middleware"

	"github.com/google/uuid"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 4 << 10

// Error is a non-2xx answer from the chat service.
type Error struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type ChatClient struct {
	baseURL *url.URL
	http    *http.Client
	log     *slog.Logger
	newID   func() string
}

var _ contracts.ChatAPI = (*ChatClient)(nil)

func NewChatClient(
	log *slog.Logger,
	cfg *config.Config,
	token func() string,
) (*ChatClient, error) {
	base, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(cfg.API.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported api url scheme %q", base.Scheme)
	}
	timeout := cfg.API.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := middleware.Chain(http.DefaultTransport,
		middleware.Tracer(cfg.Service.Name),
		middleware.RequestLogger(log),
		middleware.BearerAuth(token),
	)
	return &ChatClient{
		baseURL: base,
		http:    &http.Client{Transport: transport, Timeout: timeout},
		log:     log,
		newID:   uuid.NewString,
	}, nil
}

func (c *ChatClient) GetConversations(ctx context.Context, page, pageSize int) ([]domain.Record, error) {
	var out []domain.Record
	err := c.get(ctx, "/api/getConversations", paginated(page, pageSize), &out)
	return out, err
}

func (c *ChatClient) GetConversation(ctx context.Context, conversationID string) (domain.Record, error) {
	var out domain.Record
	q := url.Values{"conversation_id": {conversationID}}
	if err := c.get(ctx, "/api/getConversation", q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("get conversation %s: empty body", conversationID)
	}
	return out, nil
}

func (c *ChatClient) GetMessages(ctx context.Context, conversationID, cursor string, limit int) (domain.MessagePage, error) {
	q := url.Values{"conversation_id": {conversationID}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out domain.MessagePage
	err := c.get(ctx, "/api/getConversationsMessages", q, &out)
	return out, err
}

func (c *ChatClient) GetParticipants(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Record, error) {
	q := paginated(page, pageSize)
	q.Set("conversation_id", conversationID)
	var out []domain.Record
	err := c.get(ctx, "/api/getParticipants", q, &out)
	return out, err
}

func (c *ChatClient) GetUser(ctx context.Context) (domain.User, error) {
	var out domain.User
	err := c.get(ctx, "/api/getUser", nil, &out)
	return out, err
}

// CreateConversation picks the conversation id client side so the caller can
// key caches before the server answers.
func (c *ChatClient) CreateConversation(ctx context.Context, name string) (string, error) {
	id := c.newID()
	body := map[string]string{"conversation_name": name, "conversation_id": id}
	if err := c.post(ctx, "/api/createConversation", body); err != nil {
		return "", err
	}
	return id, nil
}

func (c *ChatClient) RenameConversation(ctx context.Context, conversationID, name string) error {
	return c.post(ctx, "/api/renameConversation", map[string]string{"conversation_id": conversationID, "new_name": name})
}

func (c *ChatClient) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.post(ctx, "/api/deleteConversation", map[string]string{"conversation_id": conversationID})
}

func (c *ChatClient) JoinConversation(ctx context.Context, conversationID string) error {
	return c.post(ctx, "/api/joinConversation", map[string]string{"conversation_id": conversationID})
}

func (c *ChatClient) LeaveConversation(ctx context.Context, conversationID string) error {
	return c.post(ctx, "/api/leaveConversation", map[string]string{"conversation_id": conversationID})
}

func (c *ChatClient) InviteUser(ctx context.Context, conversationID, userID string) error {
	return c.post(ctx, "/api/inviteUserToConversation", map[string]string{"conversation_id": conversationID, "user_id": userID})
}

func (c *ChatClient) KickUser(ctx context.Context, conversationID, userID string) error {
	return c.post(ctx, "/api/kick", map[string]string{"conversation_id": conversationID, "user_id": userID})
}

func paginated(page, pageSize int) url.Values {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return url.Values{"page": {strconv.Itoa(page)}, "page_size": {strconv.Itoa(pageSize)}}
}

func (c *ChatClient) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *ChatClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *ChatClient) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *ChatClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			Method: req.Method,
			Path:   req.URL.Path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/config"
	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
)

var _ adapter.AccountPanel = (*RemnawaveClient)(nil)

// RemnawaveClient implements the account panel port against a Remnawave-style REST API.
type RemnawaveClient struct {
	baseURL        string
	token          string
	externalSquad  string
	internalSquads []string
	client         *http.Client
	log            *zerolog.Logger
}

func NewRemnawaveClient(cfg config.PanelConfig, logger *zerolog.Logger) *RemnawaveClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	compLog := logger.With().Str("component", "RemnawaveClient").Logger()
	return &RemnawaveClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		externalSquad:  cfg.ExternalSquadUUID,
		internalSquads: cfg.InternalSquads,
		client:         &http.Client{Timeout: timeout},
		log:            &compLog,
	}
}

type remnaUser struct {
	UUID       string    `json:"uuid"`
	ShortUUID  string    `json:"shortUuid"`
	Username   string    `json:"username"`
	TelegramID *int64    `json:"telegramId"`
	ExpireAt   time.Time `json:"expireAt"`
	Status     string    `json:"status"`
}

func (u remnaUser) toPanel() *adapter.PanelAccount {
	a := &adapter.PanelAccount{
		ID:       u.UUID,
		ShortID:  u.ShortUUID,
		Username: u.Username,
		ExpireAt: u.ExpireAt.UTC(),
		Status:   u.Status,
	}
	if u.TelegramID != nil {
		a.ExternalUserID = *u.TelegramID
	}
	return a
}

type createUserBody struct {
	Username             string   `json:"username"`
	ExpireAt             string   `json:"expireAt"`
	TelegramID           int64    `json:"telegramId"`
	Description          string   `json:"description,omitempty"`
	ExternalSquadUUID    string   `json:"externalSquadUuid,omitempty"`
	ActiveInternalSquads []string `json:"activeInternalSquads,omitempty"`
}

func (c *RemnawaveClient) CreateAccount(ctx context.Context, req adapter.CreateAccountRequest) (*adapter.PanelAccount, error) {
	body := createUserBody{
		Username:             req.Username,
		ExpireAt:             formatExpiry(req.ExpireAt),
		TelegramID:           req.ExternalUserID,
		Description:          req.Description,
		ExternalSquadUUID:    c.externalSquad,
		ActiveInternalSquads: c.internalSquads,
	}
	var out remnaUser
	if err := c.do(ctx, http.MethodPost, "/api/users", body, &out); err != nil {
		return nil, err
	}
	c.log.Info().Str("account_id", out.UUID).Str("username", out.Username).Msg("panel account created")
	return out.toPanel(), nil
}

func (c *RemnawaveClient) UpdateExpiry(ctx context.Context, accountID string, expireAt time.Time) (*adapter.PanelAccount, error) {
	body := map[string]string{"uuid": accountID, "expireAt": formatExpiry(expireAt)}
	var out remnaUser
	if err := c.do(ctx, http.MethodPatch, "/api/users", body, &out); err != nil {
		return nil, err
	}
	return out.toPanel(), nil
}

func (c *RemnawaveClient) GetAccount(ctx context.Context, accountID string) (*adapter.PanelAccount, error) {
	var out remnaUser
	if err := c.do(ctx, http.MethodGet, "/api/users/"+accountID, nil, &out); err != nil {
		return nil, err
	}
	return out.toPanel(), nil
}

func (c *RemnawaveClient) FindByExternalUserID(ctx context.Context, userID int64) (*adapter.PanelAccount, error) {
	var out []remnaUser
	if err := c.do(ctx, http.MethodGet, "/api/users/by-telegram-id/"+strconv.FormatInt(userID, 10), nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("panel user for telegram id %d: %w", userID, domain.ErrNotFound)
	}
	return out[0].toPanel(), nil
}

func (c *RemnawaveClient) GetAccessURL(ctx context.Context, shortID string) (string, error) {
	var out struct {
		SubscriptionURL string `json:"subscriptionUrl"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sub/"+shortID+"/info", nil, &out); err != nil {
		return "", err
	}
	if out.SubscriptionURL == "" {
		return "", fmt.Errorf("subscription url for %s: %w", shortID, domain.ErrNotFound)
	}
	return out.SubscriptionURL, nil
}

// do sends one request and decodes the "response" envelope into out.
func (c *RemnawaveClient) do(ctx context.Context, method, path string, in, out any) error {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("panel %s %s: %w: %v", method, path, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("panel %s %s: %w: %v", method, path, domain.ErrUnavailable, err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).Msg("panel call")

	if err := statusError(resp.StatusCode, raw); err != nil {
		return fmt.Errorf("panel %s %s: %w", method, path, err)
	}
	var env struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Response) == 0 {
		// Some deployments return the object without the envelope.
		env.Response = raw
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("panel %s %s: decode: %w", method, path, err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	switch {
	case code < 300:
		return nil
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusConflict:
		return domain.ErrConflict
	case code >= 500 || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d", domain.ErrUnavailable, code)
	}
	var e struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	_ = json.Unmarshal(body, &e)
	if strings.Contains(strings.ToLower(e.Message), "already exists") {
		return fmt.Errorf("%w: %s", domain.ErrConflict, e.Message)
	}
	return fmt.Errorf("http %d: %s %s", code, e.ErrorCode, e.Message)
}

func formatExpiry(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

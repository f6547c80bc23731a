package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ExpoPushURL is Expo's push send endpoint.
const ExpoPushURL = "https://exp.host/--/api/v2/push/send"

// ExpoPushClient sends push notifications via Expo's Push API. Tokens look
// like "ExponentPushToken[xxx]"; Expo handles delivery to iOS and Android.
type ExpoPushClient struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// ExpoPushMessage is the payload for Expo's Push API.
type ExpoPushMessage struct {
	To       []string       `json:"to"`
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Sound    string         `json:"sound,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

// ExpoPushResponse is the response from Expo's API.
type ExpoPushResponse struct {
	Data []ExpoPushTicket `json:"data"`
}

type ExpoPushTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"` // "DeviceNotRegistered", "MessageTooBig", etc.
	} `json:"details,omitempty"`
}

// NewExpoPushClient creates a client for endpoint; an empty endpoint means
// ExpoPushURL.
func NewExpoPushClient(endpoint string, logger *slog.Logger) *ExpoPushClient {
	if endpoint == "" {
		endpoint = ExpoPushURL
	}
	return &ExpoPushClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		logger:     logger.With(slog.String("component", "expo_push")),
	}
}

// SendToTokens sends one notification to every valid Expo token. Per-token
// failures reported by Expo are logged; only transport and HTTP errors are
// returned.
func (c *ExpoPushClient) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]any) error {
	validTokens := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if isExpoToken(token) {
			validTokens = append(validTokens, token)
		} else {
			c.logger.Warn("skipping invalid push token", slog.String("token_prefix", token[:min(20, len(token))]))
		}
	}
	if len(validTokens) == 0 {
		return nil
	}

	payload, err := json.Marshal(ExpoPushMessage{
		To:       validTokens,
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: "high",
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo api error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var pushResp ExpoPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		// Expo accepted the push; the tickets are informational.
		c.logger.Warn("failed to parse push response", slog.Any("error", err))
		return nil
	}

	failed := 0
	for i, ticket := range pushResp.Data {
		if ticket.Status != "ok" {
			failed++
			c.logger.Warn("push ticket failed",
				slog.Int("index", i),
				slog.String("message", ticket.Message),
				slog.String("error", ticket.Details.Error),
			)
		}
	}
	c.logger.Info("push sent", slog.Int("tokens", len(validTokens)), slog.Int("failed", failed))
	return nil
}

func isExpoToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

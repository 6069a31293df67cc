package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPFallback returns a RESTFallback that posts messages to
// {baseURL}/api/conversations/{id}/messages with the session token.
func HTTPFallback(baseURL string, token TokenSource, client *http.Client) RESTFallback {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	base := strings.TrimSuffix(baseURL, "/")

	return func(ctx context.Context, conversationID, body string) error {
		tok, ok := token()
		if !ok {
			return ErrNoToken
		}

		payload, err := json.Marshal(map[string]string{"body": body})
		if err != nil {
			return err
		}

		endpoint := base + "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("posting message: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			var apiErr struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			json.NewDecoder(resp.Body).Decode(&apiErr)
			return fmt.Errorf("posting message: %d %s: %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil
	}
}

// Package homeauto is the Home Assistant REST client. It drives switch and
// scene service calls for the home automation tool and renders the entity
// digest that tells the model which entities exist.
package homeauto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// State is one entity as reported by GET /api/states.
type State struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// Client talks to one Home Assistant instance.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

// Option is a functional option for [NewClient].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Client) { h.client = c }
}

// NewClient returns a Client for the instance at baseURL authenticating
// with the given long-lived access token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	h := &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// LoadToken reads the access token from a secret file. Two layouts are
// accepted: the bare token, or a line of the form HA_API_KEY="…".
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("homeauto: read token: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "HA_API_KEY") {
			_, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			return strings.Trim(strings.TrimSpace(value), `"`), nil
		}
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("homeauto: token file %s is empty", path)
	}
	return token, nil
}

// States returns every entity state.
func (h *Client) States(ctx context.Context) ([]State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("homeauto: build request: %w", err)
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("homeauto: get states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("homeauto: get states: status %d", resp.StatusCode)
	}
	var states []State
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, fmt.Errorf("homeauto: decode states: %w", err)
	}
	return states, nil
}

// SetSwitch turns a switch entity on or off. Any state other than "on"
// turns it off, mirroring the reference behaviour.
func (h *Client) SetSwitch(ctx context.Context, entityID, state string) error {
	service := "turn_off"
	if state == "on" {
		service = "turn_on"
	}
	return h.callService(ctx, "switch", service, entityID)
}

// ActivateScene activates a scene. The scene. domain prefix is added when
// the caller passed a bare name.
func (h *Client) ActivateScene(ctx context.Context, sceneID string) error {
	if !strings.HasPrefix(sceneID, "scene.") {
		sceneID = "scene." + sceneID
	}
	return h.callService(ctx, "scene", "turn_on", sceneID)
}

func (h *Client) callService(ctx context.Context, domain, service, entityID string) error {
	body, err := json.Marshal(map[string]string{"entity_id": entityID})
	if err != nil {
		return fmt.Errorf("homeauto: encode service call: %w", err)
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", h.baseURL, domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("homeauto: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("homeauto: call %s.%s: %w", domain, service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("homeauto: call %s.%s for %s: status %d", domain, service, entityID, resp.StatusCode)
	}
	return nil
}

func (h *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+h.token)
}

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/errors"
)

// CallResult carries the identifying fields of a successful ledger response.
type CallResult struct {
	ExternalID    string
	SyncToken     string
	LastUpdatedAt time.Time
	Raw           map[string]interface{}
}

// Client issues one logical call per sync operation against the remote
// ledger API. It carries no retry logic of its own; retry policy belongs to
// the caller and the circuit breakers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     *TokenManager
	limiter    *rateLimiter
	logger     *logrus.Logger
}

// NewClient creates a ledger API client.
func NewClient(cfg *config.LedgerConfig, tokens *TokenManager, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		tokens:     tokens,
		limiter:    newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, logger),
		logger:     logger,
	}
}

// Create posts a new entity to the resource collection and returns the
// assigned external identifier.
func (c *Client) Create(ctx context.Context, orgID, resource string, payload map[string]interface{}) (*CallResult, error) {
	return c.call(ctx, orgID, resource, "", payload)
}

// Update posts a sparse update for an existing external entity.
func (c *Client) Update(ctx context.Context, orgID, resource, externalID string, payload map[string]interface{}) (*CallResult, error) {
	if externalID == "" {
		return nil, errors.NewValidationError("external id is required for update", nil)
	}
	body := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["Id"] = externalID
	body["sparse"] = true
	return c.call(ctx, orgID, resource, "", body)
}

// Delete posts a delete directive for an existing external entity.
func (c *Client) Delete(ctx context.Context, orgID, resource, externalID string) (*CallResult, error) {
	if externalID == "" {
		return nil, errors.NewValidationError("external id is required for delete", nil)
	}
	return c.call(ctx, orgID, resource, "operation=delete", map[string]interface{}{"Id": externalID})
}

func (c *Client) call(ctx context.Context, orgID, resource, query string, payload map[string]interface{}) (*CallResult, error) {
	token, realmID, err := c.tokens.Token(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait interrupted: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v3/company/%s/%s", c.baseURL, url.PathEscape(realmID), resource)
	if query != "" {
		endpoint += "?" + query
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"organization": orgID,
		"resource":     resource,
		"endpoint":     endpoint,
	}).Debug("Calling remote ledger")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewConnectionError("ledger request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewConnectionError("failed to read ledger response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewRemoteError(resp.StatusCode, string(respBody))
	}

	return parseEnvelope(resource, respBody)
}

// parseEnvelope extracts the entity object from the response wrapper, which
// keys the body by resource name.
func parseEnvelope(resource string, body []byte) (*CallResult, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.NewDataError("failed to decode ledger response", err)
	}

	raw, ok := envelope[resource]
	if !ok {
		// Delete responses come back keyed by resource as well, but tolerate
		// an empty body for them.
		return &CallResult{}, nil
	}

	var entity struct {
		ID        string `json:"Id"`
		SyncToken string `json:"SyncToken"`
		MetaData  struct {
			LastUpdatedTime time.Time `json:"LastUpdatedTime"`
		} `json:"MetaData"`
	}
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, errors.NewDataError("failed to decode ledger entity", err)
	}

	var rawMap map[string]interface{}
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil, errors.NewDataError("failed to decode ledger entity", err)
	}

	return &CallResult{
		ExternalID:    entity.ID,
		SyncToken:     entity.SyncToken,
		LastUpdatedAt: entity.MetaData.LastUpdatedTime,
		Raw:           rawMap,
	}, nil
}

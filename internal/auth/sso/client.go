// Package sso calls the external university single-sign-on validation
// endpoint.
//
// The protocol is fixed by the provider: a GET with a canonical query string
// and an MD5 digest over querystring+appKey appended as msgAbs. MD5 here is a
// protocol constant, not a local choice; replacing it would break validation
// against the real endpoint.
package sso

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"agora/internal/auth/models"
)

var (
	// ErrUnreachable means the provider could not be reached or did not
	// answer with a parseable envelope. Retried within Validate, surfaced
	// after retries are exhausted.
	ErrUnreachable = errors.New("sso provider unreachable")
	// ErrRejected means the provider answered success=false for the
	// presented token. Never retried.
	ErrRejected = errors.New("sso provider rejected token")
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 2
	retryBaseDelay = 200 * time.Millisecond
)

// validateResponse is the provider's JSON envelope.
type validateResponse struct {
	Success  bool                      `json:"success"`
	ErrCode  string                    `json:"errCode"`
	ErrMsg   string                    `json:"errMsg"`
	UserInfo *models.ExternalAssertion `json:"userInfo"`
}

// Client validates caller-supplied SSO tokens against the provider.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	appID      string
	appKey     string
}

// New builds an SSO client. endpoint is the provider's validate URL; appID
// and appKey are the credentials the provider issued to this deployment.
func New(endpoint, appID, appKey string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		endpoint:   endpoint,
		appID:      appID,
		appKey:     appKey,
	}
}

// Validate checks an SSO token with the provider and returns the identity
// assertion it vouches for. remoteIP is the caller's address; the provider
// binds tokens to it. Transport failures are retried with backoff up to
// maxRetries; rejections are final. The context bounds the whole call so a
// hanging provider cannot stall the request worker.
func (c *Client) Validate(ctx context.Context, remoteIP, ssoToken string) (*models.ExternalAssertion, error) {
	// Canonical ordering is part of the signed payload.
	payload := fmt.Sprintf("appId=%s&remoteAddr=%s&token=%s", c.appID, remoteIP, ssoToken)
	digest := md5.Sum([]byte(payload + c.appKey))
	url := fmt.Sprintf("%s?%s&msgAbs=%x", c.endpoint, payload, digest)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
			case <-time.After(delay):
			}
		}

		assertion, err := c.validateOnce(ctx, url)
		if err == nil {
			return assertion, nil
		}
		if errors.Is(err, ErrRejected) {
			return nil, err
		}
		lastErr = err
		c.logger.WarnContext(ctx, "sso validation attempt failed",
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, lastErr
}

func (c *Client) validateOnce(ctx context.Context, url string) (*models.ExternalAssertion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var envelope validateResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if !envelope.Success {
		return nil, fmt.Errorf("%w: %s %s", ErrRejected, envelope.ErrCode, envelope.ErrMsg)
	}
	if envelope.UserInfo == nil || envelope.UserInfo.IdentityID == "" {
		return nil, fmt.Errorf("%w: success without user info", ErrUnreachable)
	}
	return envelope.UserInfo, nil
}

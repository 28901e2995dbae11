package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"quiz-client/internal/credentials"
)

var (
	// ErrUnavailable wraps transport-level failures; the operation that hit
	// it can be retried without disturbing any other state.
	ErrUnavailable = errors.New("quiz platform unavailable")

	// ErrSessionExpired means the refresh credential is no longer valid (or
	// a renewed access credential was rejected again). The store has been
	// cleared; the user must log in again.
	ErrSessionExpired = errors.New("session expired")
)

// APIError carries a non-2xx response that is not an authorization failure,
// e.g. a validation rejection of a save or finalize payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client issues authenticated calls against the platform API. It is
// constructed once at startup and shared; the renewal gate inside it
// guarantees at most one in-flight credential renewal regardless of how many
// calls discover an expired access credential at the same time.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      credentials.Store
	log        *slog.Logger

	renewals singleflight.Group
}

func New(baseURL string, httpClient *http.Client, creds credentials.Store, logger *slog.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
		log:        logger,
	}
}

// doJSON sends an authenticated JSON request. On a 401 it delegates to the
// renewal gate and retries the original request exactly once with the new
// access credential; a second 401 is fatal.
func (c *Client) doJSON(ctx context.Context, method, path string, requestBody, responseBody any) error {
	return c.send(ctx, method, path, requestBody, responseBody, true, false)
}

// doJSONUnauthenticated is for the token endpoints themselves, which must
// not carry an access credential and must never trigger renewal.
func (c *Client) doJSONUnauthenticated(ctx context.Context, method, path string, requestBody, responseBody any) error {
	return c.send(ctx, method, path, requestBody, responseBody, false, true)
}

func (c *Client) send(ctx context.Context, method, path string, requestBody, responseBody any, authed, retried bool) error {
	var encoded []byte
	if requestBody != nil {
		var err error
		encoded, err = json.Marshal(requestBody)
		if err != nil {
			return err
		}
	}

	request, err := c.newRequest(ctx, method, path, encoded, authed)
	if err != nil {
		return err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusUnauthorized && authed {
		_, _ = io.Copy(io.Discard, response.Body)
		if retried {
			// The renewed credential was rejected too. Re-queueing here
			// would loop forever, so the session is treated as dead.
			return ErrSessionExpired
		}
		if err := c.renewAccess(ctx); err != nil {
			return err
		}
		return c.send(ctx, method, path, requestBody, responseBody, true, true)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil && strings.TrimSpace(payload.Error) != "" {
			apiErr.Message = payload.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		return apiErr
	}

	if responseBody == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}

func (c *Client) newRequest(ctx context.Context, method, path string, encoded []byte, authed bool) (*http.Request, error) {
	var body io.Reader
	if encoded != nil {
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if encoded != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("X-Request-ID", uuid.NewString())

	if authed {
		pair, err := c.creds.Load(ctx)
		if err != nil {
			if errors.Is(err, credentials.ErrNoCredentials) {
				return nil, ErrSessionExpired
			}
			return nil, err
		}
		request.Header.Set("Authorization", "Bearer "+pair.Access)
	}

	return request, nil
}

// renewAccess performs at most one credential renewal at a time. Every
// caller that reports an expired credential while one renewal is underway
// shares that renewal's outcome.
func (c *Client) renewAccess(ctx context.Context) error {
	_, err, shared := c.renewals.Do("refresh", func() (any, error) {
		// The outcome is broadcast to every waiter, so the renewal must not
		// die with the first caller's context.
		return nil, c.refreshOnce(context.WithoutCancel(ctx))
	})
	if shared {
		c.log.Debug("credential renewal outcome shared with concurrent caller")
	}
	return err
}

func (c *Client) refreshOnce(ctx context.Context) error {
	pair, err := c.creds.Load(ctx)
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			return ErrSessionExpired
		}
		return err
	}

	var payload struct {
		Access string `json:"access"`
	}
	err = c.doJSONUnauthenticated(ctx, http.MethodPost, "/token/refresh/",
		map[string]string{"refresh": pair.Refresh}, &payload)

	switch {
	case err == nil:
		if saveErr := c.creds.SaveAccess(ctx, payload.Access); saveErr != nil {
			return saveErr
		}
		c.log.Info("access credential renewed")
		return nil
	case errors.Is(err, ErrUnavailable):
		// Transient: the refresh credential may still be good, so the store
		// is left intact and the failure propagates as retryable.
		return err
	default:
		// The refresh credential itself was rejected. Clear the store and
		// reject every waiter uniformly.
		if clearErr := c.creds.Clear(ctx); clearErr != nil {
			c.log.Error("clearing credentials after failed renewal", "error", clearErr)
		}
		c.log.Warn("credential renewal rejected, session expired")
		return ErrSessionExpired
	}
}

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
)

// DirectoryClient resolves patient and provider identities against an external
// directory service. The scheduling core only asks existence and access
// questions; record management lives elsewhere.
type DirectoryClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  *zap.Logger
}

// NewDirectoryClient builds a directory client for the given base URL. An
// empty URL yields a permissive client for environments without a directory.
func NewDirectoryClient(rawURL string, timeout time.Duration, logger *zap.Logger) (*DirectoryClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rawURL == "" {
		return &DirectoryClient{logger: logger}, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryClient{
		baseURL: parsed,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Exists reports whether the directory knows the given id.
func (c *DirectoryClient) Exists(ctx context.Context, id string) (bool, error) {
	if c.baseURL == nil {
		return true, nil
	}
	status, err := c.head(ctx, "/"+url.PathEscape(id))
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("directory lookup returned %d", status)
	}
}

// HasAccess reports whether the actor may act on the given record. A denial is
// propagated as a forbidden error; this module never decides authorization.
func (c *DirectoryClient) HasAccess(ctx context.Context, id, actorID string) error {
	if c.baseURL == nil {
		return nil
	}
	path := fmt.Sprintf("/%s/access/%s", url.PathEscape(id), url.PathEscape(actorID))
	status, err := c.head(ctx, path)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusForbidden:
		return appErrors.ErrForbidden
	case http.StatusNotFound:
		return appErrors.ErrNotFound
	default:
		return fmt.Errorf("directory access check returned %d", status)
	}
}

func (c *DirectoryClient) head(ctx context.Context, path string) (int, error) {
	endpoint := *c.baseURL
	endpoint.Path = singleJoin(endpoint.Path, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build directory request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func singleJoin(base, path string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

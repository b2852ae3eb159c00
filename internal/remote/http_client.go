package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cutline/cutline-agent/internal/timeline"
)

// HTTPClient talks to the Cutline SaaS project store. The SaaS resolves the
// org from the Host header subdomain, same as the web editor.
type HTTPClient struct {
	baseURL    string
	token      string
	orgSlug    string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token, orgSlug string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		orgSlug: orgSlug,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) SetDeviceID(id string) {
	c.deviceID = id
}

func (c *HTTPClient) GetProject(ctx context.Context, id string) (*timeline.Project, error) {
	var project timeline.Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+id, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *HTTPClient) CreateProject(ctx context.Context, project *timeline.Project) (*timeline.Project, error) {
	var created timeline.Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", project, &created); err != nil {
		return nil, err
	}
	c.logger.Info("remote project created", "project_id", created.ID, "version", created.Version)
	return &created, nil
}

func (c *HTTPClient) UpdateProject(ctx context.Context, id string, fields map[string]any) (*timeline.Project, error) {
	var updated timeline.Project
	if err := c.doJSON(ctx, http.MethodPatch, "/api/projects/"+id, fields, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *HTTPClient) UpdateProjectTimeline(ctx context.Context, id string, snapshot *timeline.Snapshot) error {
	return c.doJSON(ctx, http.MethodPut, "/api/projects/"+id+"/timeline", snapshot, nil)
}

func (c *HTTPClient) BatchUpdateClips(ctx context.Context, clips []timeline.Clip) error {
	body := map[string]any{"clips": clips}
	return c.doJSON(ctx, http.MethodPost, "/api/clips/batch", body, nil)
}

func (c *HTTPClient) BatchUpdateKeyframes(ctx context.Context, keyframes []timeline.Keyframe) error {
	body := map[string]any{"keyframes": keyframes}
	return c.doJSON(ctx, http.MethodPost, "/api/keyframes/batch", body, nil)
}

// Ping probes the store's health endpoint; used by the network monitor.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Cutline-Request-Id", uuid.NewString())
	if c.deviceID != "" {
		req.Header.Set("X-Cutline-Device-Id", c.deviceID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Set Host header for tenancy resolution
	if c.orgSlug != "" {
		req.Host = c.orgSlug + ".app.cutline.local"
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(respBody) == 0 {
			return nil
		}
		return json.Unmarshal(respBody, out)
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(respBody, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = string(respBody)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}

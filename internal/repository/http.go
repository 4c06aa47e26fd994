package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/linksync/internal/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var _ Repository = (*HTTPClient)(nil)

// HTTPClient talks to the link endpoints of the content backend.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:4001/api/v1"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

func (c *HTTPClient) ListLinks(ctx context.Context, downstreamContextKey string, filter Filter) ([]model.PublishableEntityLink, error) {
	q := url.Values{}
	q.Set("course_id", downstreamContextKey)
	if filter.ReadyToSync != nil {
		q.Set("ready_to_sync", strconv.FormatBool(*filter.ReadyToSync))
	}
	if filter.UpstreamKey != "" {
		q.Set("upstream_key", filter.UpstreamKey)
	}
	if filter.ItemType != "" {
		q.Set("item_type", string(filter.ItemType))
	}
	q.Set("no_page", "true")

	links := make([]model.PublishableEntityLink, 0)
	err := c.doJSON(ctx, "list links", http.MethodGet, "/links?"+q.Encode(), nil, &links)
	return links, err
}

func (c *HTTPClient) ListSummaries(ctx context.Context, downstreamContextKey string) ([]model.PublishableEntityLinkSummary, error) {
	summaries := make([]model.PublishableEntityLinkSummary, 0)
	err := c.doJSON(ctx, "list summaries", http.MethodGet, fmt.Sprintf("/links/%s/summary", url.PathEscape(downstreamContextKey)), nil, &summaries)
	return summaries, err
}

func (c *HTTPClient) AcceptSync(ctx context.Context, downstreamUsageKey string) error {
	return c.doJSON(ctx, "accept sync", http.MethodPost, fmt.Sprintf("/links/%s/sync", url.PathEscape(downstreamUsageKey)), nil, nil)
}

func (c *HTTPClient) DeclineSync(ctx context.Context, downstreamUsageKey string) error {
	return c.doJSON(ctx, "decline sync", http.MethodDelete, fmt.Sprintf("/links/%s/sync", url.PathEscape(downstreamUsageKey)), nil, nil)
}

func (c *HTTPClient) Unlink(ctx context.Context, downstreamUsageKey string) error {
	return c.doJSON(ctx, "unlink", http.MethodDelete, fmt.Sprintf("/links/%s", url.PathEscape(downstreamUsageKey)), nil, nil)
}

func (c *HTTPClient) ListLegacyMigratable(ctx context.Context, courseID string) ([]model.LegacyBlock, error) {
	blocks := make([]model.LegacyBlock, 0)
	err := c.doJSON(ctx, "list legacy blocks", http.MethodGet, fmt.Sprintf("/legacy-migration/%s/", url.PathEscape(courseID)), nil, &blocks)
	return blocks, err
}

func (c *HTTPClient) SubmitMigration(ctx context.Context, courseID string) (*model.MigrationTask, error) {
	var task model.MigrationTask
	err := c.doJSON(ctx, "submit migration", http.MethodPost, fmt.Sprintf("/legacy-migration/%s/", url.PathEscape(courseID)), struct{}{}, &task)
	if err != nil {
		return nil, err
	}
	if task.UUID == "" {
		return nil, &Error{Kind: KindDecode, Op: "submit migration", Message: "response carries no task uuid"}
	}
	task.CourseKey = courseID
	return &task, nil
}

func (c *HTTPClient) GetTaskStatus(ctx context.Context, courseID, taskID string) (*model.MigrationTask, error) {
	var task model.MigrationTask
	err := c.doJSON(ctx, "task status", http.MethodGet, fmt.Sprintf("/legacy-migration/%s/%s/", url.PathEscape(courseID), url.PathEscape(taskID)), nil, &task)
	if err != nil {
		return nil, err
	}
	task.CourseKey = courseID
	return &task, nil
}

// doJSON performs a single attempt. Failures are mapped onto *Error and are not retried.
func (c *HTTPClient) doJSON(ctx context.Context, op, method, requestPath string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-Id", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransientNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()
	logrus.Debugf("%s %s: %d in %v", method, requestPath, resp.StatusCode, time.Since(start))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransientNetwork, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return &Error{Kind: KindDecode, Op: op, StatusCode: resp.StatusCode, Err: err}
		}
		return nil
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	message := errPayload.Message
	if message == "" {
		message = errPayload.Detail
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &Error{
		Kind:       kindForStatus(resp.StatusCode),
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindSubmissionConflict
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return KindTransientNetwork
	}
	return KindServer
}

// IsCanceled reports whether err was caused by the caller abandoning the request.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

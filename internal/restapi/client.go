// Package restapi is the HTTP client for the persistence APIs the core
// consumes but does not own: answer submission against the backend, and
// per-student answer history served from the relay's envelope log.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"classboard/pkg/types"
)

// Client talks to the submission and history REST APIs for one classroom.
type Client struct {
	baseURL     string
	classroomID string
	http        *http.Client
}

func NewClient(baseURL, classroomID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		classroomID: classroomID,
		http:        &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	UserID int         `json:"user_id"`
	Answer interface{} `json:"answer"`
}

// SubmitAnswer persists one answer and returns the server's record with
// the aggregate counters it computed.
func (c *Client) SubmitAnswer(ctx context.Context, taskID string, userID int, answer interface{}) (*types.AnswerRecord, error) {
	body, err := json.Marshal(submitRequest{UserID: userID, Answer: answer})
	if err != nil {
		return nil, fmt.Errorf("marshal answer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/tasks/%s/answers", c.baseURL, url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var record types.AnswerRecord
	if err := c.do(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// TaskHistory fetches a student's answer history for one task in the
// order the server stored it. The route is the relay's classroom-scoped
// history endpoint.
func (c *Client) TaskHistory(ctx context.Context, taskID string, userID int) ([]types.AnswerRecord, error) {
	endpoint := fmt.Sprintf("%s/api/classrooms/%s/tasks/%s/history?user_id=%s",
		c.baseURL, url.PathEscape(c.classroomID), url.PathEscape(taskID), strconv.Itoa(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	var records []types.AnswerRecord
	if err := c.do(req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body for the log line, not the whole thing.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: unexpected status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

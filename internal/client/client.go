/**
 * @description
 * Client for the Curio appraisal API.
 * Used by the CLI to submit requests and by the Poller to look up results.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 *
 * @notes
 * - Status codes map back onto the service sentinels (ErrResultPending,
 *   ErrRequestNotFound, ErrAppraisalFailed) so callers can share error handling
 *   with in-process code.
 */

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/models"
	"github.com/curio-market/backend/internal/services"
	"github.com/google/uuid"
)

const requestTimeout = 15 * time.Second

// Client talks to the appraisal HTTP API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError is a non-success response the client has no sentinel for
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api returned status %d: %s (field %s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Message)
}

// Is lets a 400 match services.ErrValidation
func (e *APIError) Is(target error) bool {
	return e.StatusCode == http.StatusBadRequest && target == services.ErrValidation
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

// NewClient creates a client from the CLI config
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Client.BaseURL, "/"),
		token:   cfg.Client.Token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(resp.Body)
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error, Field: body.Field}
}

// Submit creates an appraisal request owned by the token's user
func (c *Client) Submit(ctx context.Context, in services.SubmitInput) (*models.AppraisalRequest, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/appraisals", in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		apiErr := decodeError(resp)
		logger.Error("Appraisal API error: %d - %s", apiErr.StatusCode, apiErr.Message)
		return nil, apiErr
	}

	var out struct {
		Request models.AppraisalRequest `json:"request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &out.Request, nil
}

// GetResult fetches the stored result for a request
func (c *Client) GetResult(ctx context.Context, requestID uuid.UUID) (*models.AppraisalResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/appraisals/"+requestID.String()+"/result", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Result models.AppraisalResult `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		return &out.Result, nil
	case http.StatusAccepted:
		return nil, services.ErrResultPending
	case http.StatusNotFound:
		return nil, services.ErrRequestNotFound
	case http.StatusUnprocessableEntity:
		return nil, &services.AppraisalFailedError{RequestID: requestID, Reason: decodeError(resp).Message}
	default:
		return nil, decodeError(resp)
	}
}

// GetAppraisal fetches a request joined with its result
func (c *Client) GetAppraisal(ctx context.Context, requestID uuid.UUID) (*models.AppraisalView, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/appraisals/"+requestID.String(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, services.ErrRequestNotFound
	default:
		return nil, decodeError(resp)
	}

	var view models.AppraisalView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode appraisal: %w", err)
	}
	return &view, nil
}

// Package llm talks to a local OpenAI-compatible inference endpoint (LM Studio
// style) and turns batches of source items into validated pain-point clusters.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/painscope/painscope/pkg/models"
)

// Sentinel errors for LLM client failures. Unreachable and Timeout are the
// connectivity class: the orchestrator aborts a whole run when it sees them.
var (
	ErrUnreachable     = errors.New("llm endpoint unreachable")
	ErrTimeout         = errors.New("llm request timed out")
	ErrInvalidResponse = errors.New("llm returned invalid response")
)

// Client is the interface for cluster extraction.
type Client interface {
	// Health probes the endpoint's models listing with a short timeout.
	// Callers must confirm health before starting a run.
	Health(ctx context.Context) error
	// ExtractClusters sends one batch of items and returns the validated
	// cluster list. Labels are not guaranteed unique and quotes are not
	// guaranteed to reference real item ids; callers defend against both.
	ExtractClusters(ctx context.Context, items []models.ExtractionItem, existingContext []string) (*models.Extraction, error)
}

// HTTPClient implements Client against /v1/models and /v1/chat/completions.
type HTTPClient struct {
	baseURL        string
	model          string
	requestTimeout time.Duration
	healthTimeout  time.Duration
	client         *http.Client
}

// NewHTTPClient creates a new LLM HTTP client.
func NewHTTPClient(baseURL, model string, requestTimeout, healthTimeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:        baseURL,
		model:          model,
		requestTimeout: requestTimeout,
		healthTimeout:  healthTimeout,
		client:         &http.Client{},
	}
}

func (c *HTTPClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: models probe returned status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *HTTPClient) ExtractClusters(ctx context.Context, items []models.ExtractionItem, existingContext []string) (*models.Extraction, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildExtractionPrompt(items, existingContext)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm error %d: %s", resp.StatusCode, text)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("%w: decoding completion: %v", ErrInvalidResponse, err)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: no content in completion", ErrInvalidResponse)
	}

	return parseExtraction(chat.Choices[0].Message.Content)
}

// classifyError maps transport-level failures onto the connectivity sentinels.
func (c *HTTPClient) classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: the model may need more time; reduce the batch size or raise LLM_REQUEST_TIMEOUT",
			ErrTimeout, c.requestTimeout)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, c.requestTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// Package hiveclient is the Go SDK for the Hive-402 HTTP API: requesters
// enqueue and wait for tasks, agents claim and complete them, and
// consumers walk the ingestion handshake.
package hiveclient

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/identity"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/payment"
	"github.com/hive402/backend/internal/registry"
)

const (
	DefaultWaitPolls    = 60
	DefaultWaitInterval = time.Second
)

var ErrTaskTimeout = errors.New("task did not finish in time; is an agent running? start one with `hive-agent serve`")

// StatusError is returned for any non-2xx response other than 402 on ingest.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hive api: status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Retryable reports whether the failure is on the server side.
func (e *StatusError) Retryable() bool { return e.Code >= 500 }

// PaymentRequiredError carries the 402 payment requirement. Reason is set
// when a proof was supplied and rejected.
type PaymentRequiredError struct {
	Requirement payment.Requirement
	Reason      string
	ReasonClass string
	Instruction string
}

func (e *PaymentRequiredError) Error() string {
	if e.Reason != "" {
		return "payment required: " + e.Reason
	}
	return "payment required: " + e.Instruction
}

type Client struct {
	baseURL      string
	agentToken   string
	httpClient   *http.Client
	waitPolls    int
	waitInterval time.Duration
}

type Option func(*Client)

// WithAgentToken authenticates agent calls with "<agentId>.<secret>".
func WithAgentToken(token string) Option { return func(c *Client) { c.agentToken = token } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithWait overrides the WaitForTask polling budget.
func WithWait(polls int, interval time.Duration) Option {
	return func(c *Client) { c.waitPolls, c.waitInterval = polls, interval }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		waitPolls:    DefaultWaitPolls,
		waitInterval: DefaultWaitInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// Enqueue submits a task and returns its id.
func (c *Client) Enqueue(ctx context.Context, input string, skillIDs ...string) (uuid.UUID, error) {
	var resp struct {
		TaskID uuid.UUID `json:"taskId"`
	}
	body := map[string]interface{}{"input": input}
	if len(skillIDs) > 0 {
		body["skillIds"] = skillIDs
	}
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", body, false, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.TaskID, nil
}

// Claim returns the claimed task, or nil when the queue is empty.
func (c *Client) Claim(ctx context.Context, agentID string) (*models.Task, error) {
	var resp struct {
		Tasks []*models.Task `json:"tasks"`
	}
	path := "/v1/tasks/claim?agentId=" + url.QueryEscape(agentID)
	if err := c.do(ctx, http.MethodGet, path, nil, true, &resp); err != nil {
		return nil, err
	}
	if len(resp.Tasks) == 0 {
		return nil, nil
	}
	return resp.Tasks[0], nil
}

// Complete submits out for taskID with outcome completed or failed.
func (c *Client) Complete(ctx context.Context, taskID uuid.UUID, outcome string, out models.TaskOutput) error {
	body := map[string]interface{}{"taskId": taskID.String(), "status": outcome, "output": out}
	return c.do(ctx, http.MethodPost, "/v1/tasks/complete", body, true, nil)
}

func (c *Client) Status(ctx context.Context, taskID uuid.UUID) (*models.TaskStatusView, error) {
	var resp struct {
		Task models.TaskStatusView `json:"task"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/status?taskId="+taskID.String(), nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// WaitForTask polls until the task reaches a terminal state. It gives up
// with ErrTaskTimeout after the polling budget (60 x 1s by default).
func (c *Client) WaitForTask(ctx context.Context, taskID uuid.UUID) (*models.TaskStatusView, error) {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for i := 0; i < c.waitPolls; i++ {
		st, err := c.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch st.Status {
		case models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusExpired:
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, ErrTaskTimeout
}

// ---------------------------------------------------------------------------
// Skills
// ---------------------------------------------------------------------------

func (c *Client) Search(ctx context.Context, q, category string, minPriceUnits int64) ([]models.SkillView, error) {
	v := url.Values{}
	if q != "" {
		v.Set("q", q)
	}
	if category != "" {
		v.Set("category", category)
	}
	if minPriceUnits > 0 {
		v.Set("minPrice", strconv.FormatInt(minPriceUnits, 10))
	}
	path := "/v1/skills"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var list []models.SkillView
	if err := c.do(ctx, http.MethodGet, path, nil, false, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) Publish(ctx context.Context, req registry.PublishRequest) (*models.SkillView, error) {
	var v models.SkillView
	if err := c.do(ctx, http.MethodPost, "/v1/skills", req, false, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// PublishAsAgent uses the trusted-agent endpoint; requires WithAgentToken.
func (c *Client) PublishAsAgent(ctx context.Context, req registry.AgentPublishRequest) (*models.SkillView, error) {
	var v models.SkillView
	if err := c.do(ctx, http.MethodPost, "/v1/agent/skills", req, true, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ---------------------------------------------------------------------------
// Ingestion
// ---------------------------------------------------------------------------

// IngestRequest is the signed ingestion attempt.
type IngestRequest struct {
	SkillID      string `json:"skillId"`
	Address      string `json:"address"`
	PublicKey    string `json:"publicKey"`
	Signature    string `json:"signature"`
	Challenge    string `json:"challenge"`
	PaymentProof string `json:"paymentProof,omitempty"`
}

// Intelligence is the released content descriptor.
type Intelligence struct {
	SkillID            string    `json:"skillId"`
	Title              string    `json:"title"`
	ContentReference   string    `json:"contentReference"`
	AccessKey          string    `json:"accessKey"`
	AccessKeyExpiresAt time.Time `json:"accessKeyExpiresAt"`
	OrderID            string    `json:"orderId"`
	Simulated          bool      `json:"simulated"`
	Timestamp          time.Time `json:"timestamp"`
}

// CreateIngestChallenge returns the string to sign for skillID.
func CreateIngestChallenge(skillID string) string {
	return identity.DeriveChallenge(skillID)
}

// SignIngest builds a signed IngestRequest for skillID with priv.
func SignIngest(priv ed25519.PrivateKey, skillID, proof string) (IngestRequest, error) {
	pub := priv.Public().(ed25519.PublicKey)
	addr, err := identity.FromPublicKey(pub)
	if err != nil {
		return IngestRequest{}, err
	}
	challenge := CreateIngestChallenge(skillID)
	return IngestRequest{
		SkillID:      skillID,
		Address:      addr,
		PublicKey:    hex.EncodeToString(pub),
		Signature:    identity.Sign(priv, challenge),
		Challenge:    challenge,
		PaymentProof: proof,
	}, nil
}

// Ingest runs one ingestion round. A 402 is returned as *PaymentRequiredError.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (*Intelligence, error) {
	resp, err := c.send(ctx, http.MethodPost, "/v1/ingest", req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hive api: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, decodePaymentRequired(resp.Header.Get("payment-required"), raw)
	case resp.StatusCode/100 != 2:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	var out struct {
		Intelligence Intelligence `json:"intelligence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("hive api: decode release: %w", err)
	}
	return &out.Intelligence, nil
}

// Content redeems a single-use access key.
func (c *Client) Content(ctx context.Context, skillID, accessKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/skills/"+url.PathEscape(skillID)+"/content", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessKey)
	var out struct {
		ContentReference string `json:"contentReference"`
	}
	if err := c.roundTrip(req, &out); err != nil {
		return "", err
	}
	return out.ContentReference, nil
}

func decodePaymentRequired(header string, body []byte) error {
	pr := &PaymentRequiredError{}
	var parsed struct {
		Reason              string              `json:"reason"`
		ReasonClass         string              `json:"reasonClass"`
		Instruction         string              `json:"instruction"`
		PaymentRequirements payment.Requirement `json:"paymentRequirements"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		pr.Reason, pr.ReasonClass, pr.Instruction = parsed.Reason, parsed.ReasonClass, parsed.Instruction
		pr.Requirement = parsed.PaymentRequirements
	}
	if header != "" {
		if raw, err := base64.StdEncoding.DecodeString(header); err == nil {
			_ = json.Unmarshal(raw, &pr.Requirement)
		}
	}
	return pr
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) send(ctx context.Context, method, path string, body interface{}, asAgent bool) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("hive api: marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("hive api: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if asAgent && c.agentToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.agentToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hive api: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, asAgent bool, out interface{}) error {
	resp, err := c.send(ctx, method, path, body, asAgent)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *Client) roundTrip(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hive api: %s %s: %w", req.Method, req.URL.Path, err)
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hive api: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("hive api: decode response: %w", err)
	}
	return nil
}

// Package dealflowsdk is a minimal dealflow HTTP API client.
package dealflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Client struct {
	BaseURL string
	// Token is sent as a bearer token; APIKey as X-Api-Key. Set one.
	Token  string
	APIKey string
	HTTP   *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

// APIError is a non-2xx response decoded from the API error envelope.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	} else if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		apiErr := &APIError{Status: res.StatusCode, Code: "unknown"}
		if err := json.NewDecoder(res.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

type Deal struct {
	ID             string  `json:"id"`
	PipelineID     string  `json:"pipeline_id"`
	StageID        string  `json:"stage_id"`
	LeadName       string  `json:"lead_name"`
	Value          float64 `json:"value"`
	Notes          string  `json:"notes,omitempty"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
	Version        int64   `json:"version"`
	StageUpdatedAt string  `json:"stage_updated_at"`
}

type Stage struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipeline_id"`
	Name       string `json:"name"`
	Position   int    `json:"position"`
	Color      string `json:"color"`
	Role       string `json:"role"`
}

type TransitionRecord struct {
	ID          string `json:"id"`
	DealID      string `json:"deal_id"`
	FromStageID string `json:"from_stage_id"`
	ToStageID   string `json:"to_stage_id"`
	ActorKind   string `json:"actor_kind"`
	ActorID     string `json:"actor_id"`
	Reason      string `json:"reason,omitempty"`
	Comments    string `json:"comments,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type TransitionResult struct {
	Deal   Deal              `json:"deal"`
	Record *TransitionRecord `json:"record,omitempty"`
	NoOp   bool              `json:"no_op"`
}

type CreateDealRequest struct {
	PipelineID string  `json:"pipeline_id"`
	StageID    string  `json:"stage_id,omitempty"`
	LeadName   string  `json:"lead_name"`
	Value      float64 `json:"value,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

func (c *Client) CreateDeal(ctx context.Context, req CreateDealRequest) (Deal, error) {
	var d Deal
	err := c.do(ctx, http.MethodPost, "/deals", req, &d)
	return d, err
}

func (c *Client) GetDeal(ctx context.Context, dealID string) (Deal, error) {
	var d Deal
	err := c.do(ctx, http.MethodGet, "/deals/"+url.PathEscape(dealID), nil, &d)
	return d, err
}

func (c *Client) ListDeals(ctx context.Context, pipelineID string) ([]Deal, error) {
	var deals []Deal
	path := "/deals"
	if pipelineID != "" {
		path += "?pipeline_id=" + url.QueryEscape(pipelineID)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &deals)
	return deals, err
}

// MoveDeal transitions a deal. Reason is required for win and loss stages.
func (c *Client) MoveDeal(ctx context.Context, dealID, toStageID, reason, comments string) (TransitionResult, error) {
	var res TransitionResult
	err := c.do(ctx, http.MethodPost, "/deals/"+url.PathEscape(dealID)+"/transition", map[string]string{
		"to_stage_id": toStageID,
		"reason":      reason,
		"comments":    comments,
	}, &res)
	return res, err
}

func (c *Client) History(ctx context.Context, dealID string) ([]TransitionRecord, error) {
	var recs []TransitionRecord
	err := c.do(ctx, http.MethodGet, "/deals/"+url.PathEscape(dealID)+"/history", nil, &recs)
	return recs, err
}

func (c *Client) Stages(ctx context.Context, pipelineID string) ([]Stage, error) {
	var body struct {
		Stages []Stage `json:"stages"`
	}
	err := c.do(ctx, http.MethodGet, "/pipelines/"+url.PathEscape(pipelineID), nil, &body)
	return body.Stages, err
}

// AgentAction posts one bridge action and returns its raw result.
func (c *Client) AgentAction(ctx context.Context, action map[string]any) (map[string]any, error) {
	var res map[string]any
	err := c.do(ctx, http.MethodPost, "/agent/actions", action, &res)
	return res, err
}

// Package client is the HTTP client for the harvester monitoring API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/campuscode-io/github-harvester/internal/domain"
)

// Client is the API client for github-harvester
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListJobs retrieves the jobs in one queue partition
func (c *Client) ListJobs(partition domain.JobPartition) ([]*domain.CollectionJob, error) {
	params := url.Values{}
	params.Set("partition", string(partition))

	var response struct {
		Data []*domain.CollectionJob `json:"data"`
	}
	if err := c.get("/api/v1/jobs", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetJobCounts retrieves the job count per partition
func (c *Client) GetJobCounts() (map[domain.JobPartition]int, error) {
	var response struct {
		Data map[domain.JobPartition]int `json:"data"`
	}
	if err := c.get("/api/v1/jobs/counts", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetJob retrieves one job by id
func (c *Client) GetJob(id string) (*domain.CollectionJob, error) {
	var response struct {
		Data *domain.CollectionJob `json:"data"`
	}
	if err := c.get("/api/v1/jobs/"+id, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// DeleteJob removes one job permanently
func (c *Client) DeleteJob(id string) error {
	return c.do(http.MethodDelete, "/api/v1/jobs/"+id, nil, nil)
}

// RetryJob requeues one dead-lettered job
func (c *Client) RetryJob(id string) error {
	return c.do(http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil, nil)
}

// RetryAllJobs requeues every dead-lettered job and returns how many
func (c *Client) RetryAllJobs() (int, error) {
	var response struct {
		Retried int `json:"retried"`
	}
	if err := c.do(http.MethodPost, "/api/v1/jobs/retry-all", nil, &response); err != nil {
		return 0, err
	}
	return response.Retried, nil
}

// TriggerCollection enqueues a harvest run for one user
func (c *Client) TriggerCollection(login string, userID int64, encryptedToken string) error {
	body := map[string]any{
		"user_id":         userID,
		"encrypted_token": encryptedToken,
	}
	return c.do(http.MethodPost, "/api/v1/collections/"+login, body, nil)
}

// GetUserStatistics retrieves the per-user rollup
func (c *Client) GetUserStatistics(login string) (*domain.UserStatistics, error) {
	var response struct {
		Data *domain.UserStatistics `json:"data"`
	}
	if err := c.get("/api/v1/users/"+login+"/statistics", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// RecalculateUser forces a statistics rebuild for one user
func (c *Client) RecalculateUser(login string) error {
	return c.do(http.MethodPost, "/api/v1/users/"+login+"/statistics/recalculate", nil, nil)
}

// GetPlatformStatistics retrieves the platform-wide rollup
func (c *Client) GetPlatformStatistics() (*domain.PlatformStatistics, error) {
	var response struct {
		Data *domain.PlatformStatistics `json:"data"`
	}
	if err := c.get("/api/v1/statistics/platform", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) do(method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

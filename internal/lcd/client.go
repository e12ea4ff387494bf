// Package lcd is a minimal client for the Cosmos LCD REST API.
package lcd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	nodeInfoPath  = "/cosmos/base/tendermint/v1beta1/node_info"
	statePathTmpl = "/cosmwasm/wasm/v1/contract/%s/state"

	maxErrorBody = 512
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// NodeInfo is the subset of the node_info response used for health checks.
type NodeInfo struct {
	Network string
	Version string
}

// Entry is one raw key/value pair of contract storage.
type Entry struct {
	Key   []byte
	Value []byte
}

// StatePage is one page of the raw contract state query.
// An empty NextKey marks the last page.
type StatePage struct {
	Entries []Entry
	NextKey []byte
}

// Client issues LCD queries. It does not retry.
type Client struct {
	httpClient *http.Client
}

// NewClient wraps httpClient, or http.DefaultClient when nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

type nodeInfoResponse struct {
	DefaultNodeInfo struct {
		Network string `json:"network"`
		Version string `json:"version"`
	} `json:"default_node_info"`
}

// NodeInfo queries the node_info endpoint of baseURL.
func (c *Client) NodeInfo(ctx context.Context, baseURL string) (NodeInfo, error) {
	var resp nodeInfoResponse
	if err := c.getJSON(ctx, joinURL(baseURL, nodeInfoPath), &resp); err != nil {
		return NodeInfo{}, err
	}
	return NodeInfo{
		Network: resp.DefaultNodeInfo.Network,
		Version: resp.DefaultNodeInfo.Version,
	}, nil
}

type stateResponse struct {
	Models []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"models"`
	Pagination *struct {
		NextKey *string `json:"next_key"`
	} `json:"pagination"`
}

// ContractState fetches one page of the raw state of contract, resuming at pageKey.
func (c *Client) ContractState(ctx context.Context, baseURL, contract string, pageKey []byte, limit int) (StatePage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("pagination.limit", strconv.Itoa(limit))
	}
	if len(pageKey) > 0 {
		query.Set("pagination.key", base64.StdEncoding.EncodeToString(pageKey))
	}
	target := joinURL(baseURL, fmt.Sprintf(statePathTmpl, url.PathEscape(contract)))
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var resp stateResponse
	if err := c.getJSON(ctx, target, &resp); err != nil {
		return StatePage{}, err
	}

	page := StatePage{Entries: make([]Entry, 0, len(resp.Models))}
	for i, m := range resp.Models {
		key, err := hex.DecodeString(m.Key)
		if err != nil {
			return StatePage{}, fmt.Errorf("decode key %d: %w", i, err)
		}
		value, err := base64.StdEncoding.DecodeString(m.Value)
		if err != nil {
			return StatePage{}, fmt.Errorf("decode value %d: %w", i, err)
		}
		page.Entries = append(page.Entries, Entry{Key: key, Value: value})
	}

	if resp.Pagination != nil && resp.Pagination.NextKey != nil && *resp.Pagination.NextKey != "" {
		next, err := base64.StdEncoding.DecodeString(*resp.Pagination.NextKey)
		if err != nil {
			return StatePage{}, fmt.Errorf("decode next_key: %w", err)
		}
		page.NextKey = next
	}

	return page, nil
}

func (c *Client) getJSON(ctx context.Context, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", target, err)
	}
	return nil
}

func joinURL(baseURL, path string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
}

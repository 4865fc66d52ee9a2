// Package sheets is a minimal Google Sheets REST v4 client covering range
// clear and range update.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// ValueInputOption values accepted by values.update.
const (
	InputUserEntered = "USER_ENTERED"
	InputRaw         = "RAW"
)

// Client performs Google Sheets value operations.
type Client interface {
	ClearValues(ctx context.Context, spreadsheetID, a1Range string) error
	UpdateValues(ctx context.Context, spreadsheetID, a1Range string, values [][]any) (*UpdateResponse, error)
}

// UpdateResponse is the response from values.update.
type UpdateResponse struct {
	SpreadsheetID  string `json:"spreadsheetId"`
	UpdatedRange   string `json:"updatedRange"`
	UpdatedRows    int    `json:"updatedRows"`
	UpdatedColumns int    `json:"updatedColumns"`
	UpdatedCells   int    `json:"updatedCells"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client. Use an authorized
// client (see NewServiceAccountClient) in production.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithValueInputOption overrides how written values are interpreted.
func WithValueInputOption(opt string) Option {
	return func(c *httpClient) {
		c.valueInput = opt
	}
}

type httpClient struct {
	baseURL    string
	valueInput string
	http       *http.Client
}

// NewClient creates a Sheets API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:    defaultBaseURL,
		valueInput: InputUserEntered,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type valueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

func (c *httpClient) ClearValues(ctx context.Context, spreadsheetID, a1Range string) error {
	_, err := c.do(ctx, http.MethodPost, c.valuesURL(spreadsheetID, a1Range)+":clear", nil, struct{}{})
	if err != nil {
		return eris.Wrapf(err, "sheets: clear %s", a1Range)
	}
	return nil
}

func (c *httpClient) UpdateValues(ctx context.Context, spreadsheetID, a1Range string, values [][]any) (*UpdateResponse, error) {
	q := url.Values{"valueInputOption": {c.valueInput}}
	body := valueRange{Range: a1Range, MajorDimension: "ROWS", Values: values}

	respBody, err := c.do(ctx, http.MethodPut, c.valuesURL(spreadsheetID, a1Range), q, body)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: update %s", a1Range)
	}

	var result UpdateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "sheets: unmarshal update response")
	}
	return &result, nil
}

func (c *httpClient) valuesURL(spreadsheetID, a1Range string) string {
	return c.baseURL + "/spreadsheets/" + url.PathEscape(spreadsheetID) + "/values/" + url.PathEscape(a1Range)
}

func (c *httpClient) do(ctx context.Context, method, rawURL string, q url.Values, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "marshal request")
	}
	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Client sends JSON requests to an in-process handler
type Client struct {
	Handler http.Handler
	Headers map[string]string
}

// NewClient creates a Client that adds headers to every request
func NewClient(h http.Handler, headers map[string]string) *Client {
	return &Client{Handler: h, Headers: headers}
}

// Do sends method path with body encoded as JSON when non-nil
func (c *Client) Do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err, "Failed to marshal request body")
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	c.Handler.ServeHTTP(w, req)
	return w
}

// Decode parses the response envelope and, when out is non-nil, its data
func Decode(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()

	var envelope struct {
		dto.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), "Failed to parse JSON response: %s", w.Body.String())
	if out != nil && len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, out), "Failed to parse response data")
	}
	return envelope.Response
}

// AssertErrorCode asserts an error envelope with status and code
func AssertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	assert.Equal(t, status, w.Code, w.Body.String())
	resp := Decode(t, w, nil)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error, "Expected error object in response")
	assert.Equal(t, code, resp.Error.Code)
}

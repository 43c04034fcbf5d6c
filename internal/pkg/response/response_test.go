package response

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Code string `json:"code"`
}

func TestDecodeJSON(t *testing.T) {
	var b body
	require.NoError(t, DecodeJSON(io.NopCloser(strings.NewReader(`{"code":"ABCDE"}`)), &b))
	assert.Equal(t, "ABCDE", b.Code)

	assert.Error(t, DecodeJSON(io.NopCloser(strings.NewReader(`{"code":"A","extra":1}`)), &b))
	assert.Error(t, DecodeJSON(io.NopCloser(strings.NewReader(`{"code":"A"}{"code":"B"}`)), &b))
	assert.Error(t, DecodeJSON(io.NopCloser(strings.NewReader(`{`)), &b))
}

func TestTooManyRequestsRoundsRetryAfterUp(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "", 1500*time.Millisecond)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.Code)
}

func TestPageFlagsFullPages(t *testing.T) {
	w := httptest.NewRecorder()
	Page(w, []int{1, 2}, 2, 2, 0)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Meta.HasNext)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

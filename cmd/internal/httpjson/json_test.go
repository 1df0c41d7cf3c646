package httpjson

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Shape(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "not_found", "record not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"]["code"])
	assert.Equal(t, "record not found", body["error"]["message"])
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	cases := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{"ok", `{"name":"a"}`, 0, false},
		{"unknown field", `{"name":"a","x":1}`, 0, true},
		{"trailing data", `{"name":"a"}{"name":"b"}`, 0, true},
		{"too large", `{"name":"` + strings.Repeat("a", 64) + `"}`, 16, true},
		{"not json", `nope`, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst payload
			err := Decode(httptest.NewRecorder(), r, tc.max, &dst)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", dst.Name)
		})
	}
}

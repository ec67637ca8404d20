// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		token, ok := bearerToken(req)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.token, token, tc.header)
	}
}

// TestPurpose: Validates cross-origin handling for configured origins.
// Scope: Unit Test
// Security: Only allow-listed origins receive CORS headers
// Expected: Preflight from an allowed origin is echoed back; other origins get no allow header.
// Test Case ID: HTTP-10
func TestCORS_AllowList(t *testing.T) {
	handler := CORS([]string{"https://console.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/org/update", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://console.example.com")
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight("https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_ClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("X-Real-IP", "198.51.100.3")
	req.Header.Set("X-Forwarded-For", " 192.0.2.7 , 10.0.0.1")

	direct := NewRateLimiter(1, 1)
	assert.Equal(t, "203.0.113.9", direct.ClientIP(req))

	proxied := NewRateLimiter(1, 1).WithTrustedProxy(true)
	assert.Equal(t, "192.0.2.7", proxied.ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.3", proxied.ClientIP(req))

	req.Header.Del("X-Real-IP")
	assert.Equal(t, "203.0.113.9", proxied.ClientIP(req))

	req.RemoteAddr = "[2001:db8::1]:5555"
	assert.Equal(t, "2001:db8::1", direct.ClientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", direct.ClientIP(req))
}

// Copyright 2017 Fortio Authors
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

package echosrv

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fortio.org/assert"
)

func TestEchoHandlerDefaultsTo200AndEchoesBody(t *testing.T) {
	h := NewHandler(0, 0)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL, "text/plain", bytes.NewBufferString("hello"))
	assert.True(t, err == nil, "expected no error: %v", err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEchoHandlerStatusOverride(t *testing.T) {
	h := NewHandler(0, 0)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?status=503")
	assert.True(t, err == nil, "expected no error: %v", err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEchoHandlerFirstRequestDelay(t *testing.T) {
	h := NewHandler(100*time.Millisecond, 0)
	srv := httptest.NewServer(h)
	defer srv.Close()

	start := time.Now()
	resp, err := http.Get(srv.URL)
	assert.True(t, err == nil, "expected no error: %v", err)
	resp.Body.Close()
	firstElapsed := time.Since(start)
	assert.True(t, firstElapsed >= 100*time.Millisecond, "expected first request to be delayed")

	start = time.Now()
	resp2, err := http.Get(srv.URL)
	assert.True(t, err == nil, "expected no error: %v", err)
	resp2.Body.Close()
	secondElapsed := time.Since(start)
	assert.True(t, secondElapsed < 50*time.Millisecond, "expected second request from the same client to not be delayed")
}

func TestEchoHandlerRateLimit(t *testing.T) {
	h := NewHandler(0, 20) // 20 responses/sec, burst 1.
	srv := httptest.NewServer(h)
	defer srv.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL)
		assert.True(t, err == nil, "expected no error: %v", err)
		resp.Body.Close()
	}
	elapsed := time.Since(start)
	// 3 requests at 20/sec and burst 1 take at least 2 inter-request gaps (~100ms).
	assert.True(t, elapsed >= 90*time.Millisecond, "expected the 3rd request to be throttled, took %v", elapsed)
}

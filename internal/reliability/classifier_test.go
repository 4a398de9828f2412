package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryableHTTPStatus(tc.code), "status %d", tc.code)
	}
}

func TestIsRetryableStreamMessageType(t *testing.T) {
	assert.True(t, IsRetryableStreamMessageType("rate_limited"))
	assert.False(t, IsRetryableStreamMessageType("invalid_voice"))
}

func TestErrorClass(t *testing.T) {
	cases := []struct {
		name   string
		status int
		err    error
		want   string
	}{
		{"canceled", 0, fmt.Errorf("send: %w", context.Canceled), "canceled"},
		{"deadline", 0, context.DeadlineExceeded, "timeout"},
		{"rate limited", 429, errors.New("slow down"), "rate_limited"},
		{"auth", 401, errors.New("bad key"), "auth"},
		{"server", 502, errors.New("bad gateway"), "upstream_5xx"},
		{"client", 422, errors.New("bad body"), "client_4xx"},
		{"transport", 0, errors.New("connection refused"), "transport"},
		{"none", 0, nil, "none"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorClass(tc.status, tc.err))
		})
	}
}

package tryon

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o operation failed" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRuleClassifierClassify(t *testing.T) {
	c := NewDefaultClassifier()

	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "nil error", err: nil, transient: false},
		{name: "upstream 429", err: &UpstreamError{StatusCode: 429, Body: "rate limited"}, transient: true},
		{name: "upstream 502", err: &UpstreamError{StatusCode: 502, Body: "bad gateway"}, transient: true},
		{name: "upstream 503", err: &UpstreamError{StatusCode: 503, Body: "unavailable"}, transient: true},
		{name: "upstream 504", err: &UpstreamError{StatusCode: 504, Body: "gateway timeout"}, transient: true},
		{name: "upstream 400", err: &UpstreamError{StatusCode: 400, Body: "invalid garment image"}, transient: false},
		{name: "upstream 401", err: &UpstreamError{StatusCode: 401, Body: "bad key"}, transient: false},
		{name: "upstream 500", err: &UpstreamError{StatusCode: 500, Body: "boom"}, transient: false},
		{name: "wrapped upstream 503", err: fmt.Errorf("attempt: %w", &UpstreamError{StatusCode: 503}), transient: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, transient: true},
		{name: "wrapped deadline", err: fmt.Errorf("render: %w", context.DeadlineExceeded), transient: true},
		{name: "net timeout", err: timeoutErr{}, transient: true},
		{name: "connection reset substring", err: errors.New("read tcp: connection reset by peer"), transient: true},
		{name: "connection refused substring", err: errors.New("dial tcp: connection refused"), transient: true},
		{name: "broken pipe substring", err: errors.New("write: broken pipe"), transient: true},
		{name: "timed out substring", err: errors.New("request timed out"), transient: true},
		{name: "plain error", err: errors.New("no output url in response"), transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.err)
			assert.Equal(t, tt.transient, got.Transient)
			if tt.err != nil {
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestRuleClassifierMessageCarriesCause(t *testing.T) {
	c := NewDefaultClassifier()

	got := c.Classify(&UpstreamError{StatusCode: 503, Body: "maintenance"})
	assert.Contains(t, got.Message, "503")
	assert.Contains(t, got.Message, "maintenance")
}

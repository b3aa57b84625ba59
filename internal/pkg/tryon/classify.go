package tryon

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classification is the normalized verdict on a gateway failure. Transient
// failures re-enter the retry machinery; permanent ones fail the request and
// refund immediately.
type Classification struct {
	Transient bool
	Message   string
}

// Classifier decides whether an upstream failure is worth retrying. The
// default table encodes a policy, not a protocol guarantee; deployments facing
// a different upstream swap in their own rules.
type Classifier interface {
	Classify(err error) Classification
}

// RuleClassifier classifies by upstream HTTP status first, then by error
// message substring. Everything unmatched is permanent.
type RuleClassifier struct {
	TransientStatusCodes map[int]bool
	TransientSubstrings  []string
}

// NewDefaultClassifier returns the stock rule table: timeouts, connection
// resets and upstream 429/502/503/504 are transient, all else permanent.
func NewDefaultClassifier() *RuleClassifier {
	return &RuleClassifier{
		TransientStatusCodes: map[int]bool{
			429: true,
			502: true,
			503: true,
			504: true,
		},
		TransientSubstrings: []string{
			"timeout",
			"timed out",
			"connection reset",
			"connection refused",
			"broken pipe",
			"unexpected eof",
			"etimedout",
			"econnreset",
		},
	}
}

func (c *RuleClassifier) Classify(err error) Classification {
	if err == nil {
		return Classification{Transient: false, Message: ""}
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return Classification{
			Transient: c.TransientStatusCodes[upstream.StatusCode],
			Message:   upstream.Error(),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Transient: true, Message: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Transient: true, Message: err.Error()}
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range c.TransientSubstrings {
		if strings.Contains(msg, sub) {
			return Classification{Transient: true, Message: err.Error()}
		}
	}

	return Classification{Transient: false, Message: err.Error()}
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/siteprobe/models"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"nil", nil, models.KindNone},
		{"429", models.NewStatusError("u", 429), models.KindRateLimited},
		{"403", models.NewStatusError("u", 403), models.KindBlocked},
		{"401", models.NewStatusError("u", 401), models.KindBlocked},
		{"404", models.NewStatusError("u", 404), models.KindNotFound},
		{"410", models.NewStatusError("u", 410), models.KindNotFound},
		{"503", models.NewStatusError("u", 503), models.KindTransient},
		{"408", models.NewStatusError("u", 408), models.KindTransient},
		{"418", models.NewStatusError("u", 418), models.KindFatal},
		{"explicit kind wins over status", &models.FetchError{Kind: models.KindBlocked, StatusCode: 200}, models.KindBlocked},
		{"wrapped fetch error", fmt.Errorf("engine: %w", models.NewFetchError(models.KindRateLimited, "unusual traffic", nil)), models.KindRateLimited},
		{"invalid target", fmt.Errorf("parse: %w", models.ErrInvalidTarget), models.KindInvalidInput},
		{"url parse error", &url.Error{Op: "parse", URL: "::", Err: errors.New("missing protocol scheme")}, models.KindInvalidInput},
		{"deadline", context.DeadlineExceeded, models.KindTransient},
		{"canceled", fmt.Errorf("navigate: %w", context.Canceled), models.KindTransient},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, models.KindTransient},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), models.KindTransient},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}, models.KindTransient},
		{"net timeout", &url.Error{Op: "Get", URL: "https://x", Err: timeoutErr{}}, models.KindTransient},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), models.KindTransient},
		{"session lost", fmt.Errorf("cdp: %w", models.ErrSessionLost), models.KindTransient},
		{"pool exhausted", fmt.Errorf("acquire: %w", models.ErrPoolExhausted), models.KindFatal},
		{"unknown", errors.New("boom"), models.KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestStatusKind_SuccessIsNone(t *testing.T) {
	assert.Equal(t, models.KindNone, StatusKind(200))
	assert.Equal(t, models.KindNone, StatusKind(301))
}

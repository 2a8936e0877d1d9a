package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"github.com/use-agent/siteprobe/models"
)

// Classify maps any failure raised by a fetch engine to an ErrorKind.
// It is pure and safe for concurrent use. Rules, first match wins:
//
//  1. A FetchError with an explicit kind keeps it; one with only a status
//     code is mapped by StatusKind (429 → RateLimited, 403 → Blocked,
//     404 → NotFound, ...).
//  2. Malformed targets → InvalidInput.
//  3. Timeouts, resets, refused connections, DNS and other transport I/O
//     errors, and lost browser sessions → Transient.
//  4. Everything else → Fatal.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return models.KindNone
	}

	var fe *models.FetchError
	if errors.As(err, &fe) {
		if fe.Kind != models.KindNone {
			return fe.Kind
		}
		if fe.StatusCode != 0 {
			return StatusKind(fe.StatusCode)
		}
	}

	if errors.Is(err, models.ErrInvalidTarget) {
		return models.KindInvalidInput
	}
	if errors.Is(err, models.ErrPoolExhausted) {
		return models.KindFatal
	}
	if isTransport(err) {
		return models.KindTransient
	}

	// url.Error without a transport cause means the request never left,
	// typically an unsupported scheme or a broken host.
	var ue *url.Error
	if errors.As(err, &ue) && ue.Op == "parse" {
		return models.KindInvalidInput
	}

	return models.KindFatal
}

// StatusKind maps an HTTP status code to an ErrorKind. 2xx and 3xx map to
// KindNone.
func StatusKind(code int) models.ErrorKind {
	switch {
	case code < 400:
		return models.KindNone
	case code == http.StatusTooManyRequests:
		return models.KindRateLimited
	case code == http.StatusForbidden, code == http.StatusUnauthorized:
		return models.KindBlocked
	case code == http.StatusNotFound, code == http.StatusGone:
		return models.KindNotFound
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return models.KindTransient
	default:
		return models.KindFatal
	}
}

func isTransport(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, models.ErrSessionLost),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, net.ErrClosed):
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

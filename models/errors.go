package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind is the failure taxonomy shared by every fetch capability.
// The zero value KindNone means "no failure".
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransient
	KindRateLimited
	KindBlocked
	KindNotFound
	KindInvalidInput
	KindFatal
)

var kindNames = map[ErrorKind]string{
	KindNone:         "",
	KindTransient:    "transient",
	KindRateLimited:  "rate_limited",
	KindBlocked:      "blocked",
	KindNotFound:     "not_found",
	KindInvalidInput: "invalid_input",
	KindFatal:        "fatal",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Retryable reports whether another attempt may fix the failure.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// MarshalJSON encodes KindNone as null and every other kind as its name.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	if k == KindNone {
		return []byte("null"), nil
	}
	return json.Marshal(k.String())
}

func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = KindNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for kind, name := range kindNames {
		if name == s && kind != KindNone {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", s)
}

// Sentinel causes recognised by the classifier.
var (
	// ErrInvalidTarget marks a target string that cannot be fetched at all.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrSessionLost marks a browser session that died mid-operation.
	ErrSessionLost = errors.New("browser session lost")

	// ErrPoolExhausted is returned when no browser session frees up in time.
	ErrPoolExhausted = errors.New("session pool exhausted")
)

// FetchError is the typed failure raised by fetch engines. Kind is set when
// the engine already knows the category (CAPTCHA page, throttling banner,
// bad target). Otherwise StatusCode carries the upstream HTTP status and the
// classifier derives the kind from it.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Kind != KindNone {
		msg = e.Kind.String() + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a FetchError with an explicit kind.
func NewFetchError(kind ErrorKind, message string, err error) *FetchError {
	return &FetchError{Kind: kind, Message: message, Err: err}
}

// NewStatusError records a non-2xx upstream response. The kind is left for
// the classifier to decide.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{
		StatusCode: status,
		URL:        url,
		Message:    "unexpected upstream status",
	}
}

// ErrorDetail is the structured error in API responses that are not
// ScrapeResults (auth and rate-limit rejections).
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes used by the routing layer.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
)

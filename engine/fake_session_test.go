package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeSession is an in-memory Session driven by its fields.
type fakeSession struct {
	mu        sync.Mutex
	html      string
	url       string
	status    int
	navErr    error
	waitErr   error
	waitBlock bool
	navigated []string
	modes     []ResourceMode
	resets    int
	closed    bool
}

func (f *fakeSession) SetResources(mode ResourceMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	if f.navErr != nil {
		return f.navErr
	}
	if f.url == "" {
		f.url = url
	}
	return ctx.Err()
}

func (f *fakeSession) DismissConsent(ctx context.Context, timeout time.Duration) bool {
	return false
}

func (f *fakeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if f.waitBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.waitErr
}

func (f *fakeSession) HTML(ctx context.Context) (string, error) {
	return f.html, nil
}

func (f *fakeSession) URL(ctx context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakeSession) StatusCode(ctx context.Context) int { return f.status }

func (f *fakeSession) Snapshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (f *fakeSession) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.url = ""
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	return nil
}

// fakeFactory builds sessions from a template and counts them.
type fakeFactory struct {
	created  atomic.Int32
	template func() *fakeSession
	sessions []*fakeSession
	mu       sync.Mutex
	err      error
}

func (f *fakeFactory) open(ctx context.Context) (Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created.Add(1)
	s := &fakeSession{}
	if f.template != nil {
		s = f.template()
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

package scraper

import (
	"strings"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/siteprobe/engine"
)

// resourceTypes maps config names to rod resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// adHosts never contribute to a channel page. Parent domains match their
// subdomains.
var adHosts = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"adservice.google.com",
	"connect.facebook.net",
	"scorecardresearch.com",
	"amazon-adsystem.com",
	"criteo.com",
	"taboola.com",
	"outbrain.com",
	"hotjar.com",
}

func isTrackerDomain(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, d := range adHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// resourceFilter decides per request whether a tab may load it. The mode
// is swapped by each lease holder while the router keeps running.
type resourceFilter struct {
	blocked map[proto.NetworkResourceType]struct{}
	mode    atomic.Int32
	dropped atomic.Int64
}

func newResourceFilter(blockedTypes []string) *resourceFilter {
	f := &resourceFilter{blocked: make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))}
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			f.blocked[rt] = struct{}{}
		}
	}
	return f
}

func (f *resourceFilter) setMode(m engine.ResourceMode) { f.mode.Store(int32(m)) }

func (f *resourceFilter) currentMode() engine.ResourceMode {
	return engine.ResourceMode(f.mode.Load())
}

// allow reports whether a request of type rt to host may go out. Documents
// and scripts from the page's own origin always pass.
func (f *resourceFilter) allow(rt proto.NetworkResourceType, host string) bool {
	if f.currentMode() == engine.ResourcesFull {
		return true
	}
	if _, drop := f.blocked[rt]; drop {
		return false
	}
	return rt == proto.NetworkResourceTypeDocument || !isTrackerDomain(host)
}

// install starts a hijack router on page that consults f for every
// request. The caller stops the returned router.
func (f *resourceFilter) install(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if f.allow(h.Request.Type(), h.Request.URL().Hostname()) {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		f.dropped.Add(1)
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}

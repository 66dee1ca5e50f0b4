// Package router implements the offline-aware cache policy as an http.RoundTripper.
// API requests always go to the network, page navigations are network-first with a
// cached fallback, and static assets are served cache-first.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/cache"
)

// Class is the cache policy applied to a request.
type Class string

// Request classes.
const (
	ClassAPI         Class = "api"
	ClassNavigation  Class = "navigation"
	ClassStatic      Class = "static"
	ClassPassthrough Class = "passthrough"
)

// Outcome says where a response came from.
type Outcome string

// Response outcomes.
const (
	OutcomeNetwork     Outcome = "network"
	OutcomeCache       Outcome = "cache"
	OutcomeOfflinePage Outcome = "offline_page"
	OutcomePlaceholder Outcome = "placeholder"
	OutcomeOfflineAPI  Outcome = "offline_api"
	OutcomeFailed      Outcome = "failed"
)

// CacheHeader marks responses that did not come straight from the network.
const CacheHeader = "X-Cache"

// OfflineAPIBody is returned for API requests that cannot reach the network.
const OfflineAPIBody = `{"error":"You are offline","offline":true}`

const builtinOfflinePage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>Your information is saved and will be sent when you reconnect.</p></body>
</html>
`

// maxCachedBody bounds the bytes buffered for a cacheable response.
const maxCachedBody = 8 << 20

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".avif": true,
}

// Store is the cache surface the router needs.
type Store interface {
	Get(ctx context.Context, method, rawURL string) (cache.Entry, error)
	Put(ctx context.Context, entry cache.Entry) error
}

// Config wires a Router.
type Config struct {
	Cache Store
	// Next performs network requests; defaults to http.DefaultTransport.
	Next http.RoundTripper
	// Origin is the application origin; requests to other hosts pass through untouched.
	Origin *url.URL
	// APIPrefix defaults to /api/.
	APIPrefix string
	// OfflinePath defaults to /offline.
	OfflinePath string
	// PlaceholderImage defaults to /icons/icon-72x72.png.
	PlaceholderImage string
	// Observe, when set, is called once per routed request.
	Observe func(Class, Outcome)
	Logger  *zap.Logger
}

// Router applies the cache policy in front of Next.
type Router struct {
	cache       Store
	next        http.RoundTripper
	origin      *url.URL
	apiPrefix   string
	offlinePath string
	placeholder string
	observe     func(Class, Outcome)
	logger      *zap.Logger
}

// New validates cfg and builds a Router.
func New(cfg Config) (*Router, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("router cache is required")
	}
	if cfg.Origin == nil || cfg.Origin.Host == "" {
		return nil, fmt.Errorf("router origin is required")
	}
	r := &Router{
		cache:       cfg.Cache,
		next:        cfg.Next,
		origin:      cfg.Origin,
		apiPrefix:   cfg.APIPrefix,
		offlinePath: cfg.OfflinePath,
		placeholder: cfg.PlaceholderImage,
		observe:     cfg.Observe,
		logger:      cfg.Logger,
	}
	if r.next == nil {
		r.next = http.DefaultTransport
	}
	if r.apiPrefix == "" {
		r.apiPrefix = "/api/"
	}
	if r.offlinePath == "" {
		r.offlinePath = "/offline"
	}
	if r.placeholder == "" {
		r.placeholder = "/icons/icon-72x72.png"
	}
	if r.observe == nil {
		r.observe = func(Class, Outcome) {}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r, nil
}

// Classify picks the policy for req.
func (r *Router) Classify(req *http.Request) Class {
	if !r.sameOrigin(req.URL) {
		return ClassPassthrough
	}
	if strings.HasPrefix(req.URL.Path, r.apiPrefix) {
		return ClassAPI
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return ClassAPI
	}
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" || acceptsHTML(req.Header.Get("Accept")) {
		return ClassNavigation
	}
	return ClassStatic
}

// RoundTrip implements http.RoundTripper.
func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	class := r.Classify(req)
	var (
		resp    *http.Response
		outcome Outcome
		err     error
	)
	switch class {
	case ClassAPI:
		resp, outcome, err = r.api(req)
	case ClassNavigation:
		resp, outcome, err = r.navigation(req)
	case ClassStatic:
		resp, outcome, err = r.static(req)
	default:
		resp, err = r.next.RoundTrip(req)
		outcome = OutcomeNetwork
		if err != nil {
			outcome = OutcomeFailed
		}
	}
	r.observe(class, outcome)
	if err != nil {
		return nil, fmt.Errorf("%s request %s: %w", class, req.URL.Path, err)
	}
	return resp, nil
}

func (r *Router) api(req *http.Request) (*http.Response, Outcome, error) {
	resp, err := r.next.RoundTrip(req)
	if err == nil {
		return resp, OutcomeNetwork, nil
	}
	r.logger.Debug("api request failed, answering offline", zap.String("path", req.URL.Path), zap.Error(err))
	header := http.Header{"Content-Type": {"application/json"}}
	return synthesize(req, http.StatusServiceUnavailable, header, []byte(OfflineAPIBody), ""), OutcomeOfflineAPI, nil
}

func (r *Router) navigation(req *http.Request) (*http.Response, Outcome, error) {
	resp, err := r.next.RoundTrip(req)
	if err == nil {
		resp, storeErr := r.store(req, resp)
		if storeErr != nil {
			return nil, OutcomeFailed, storeErr
		}
		return resp, OutcomeNetwork, nil
	}
	ctx := req.Context()
	if entry, cerr := r.cache.Get(ctx, http.MethodGet, req.URL.String()); cerr == nil {
		return fromEntry(req, entry, "hit"), OutcomeCache, nil
	}
	if entry, cerr := r.cache.Get(ctx, http.MethodGet, r.resolve(r.offlinePath)); cerr == nil {
		return fromEntry(req, entry, "offline-page"), OutcomeOfflinePage, nil
	}
	r.logger.Warn("offline page missing from cache", zap.String("path", r.offlinePath))
	header := http.Header{"Content-Type": {"text/html; charset=utf-8"}}
	return synthesize(req, http.StatusServiceUnavailable, header, []byte(builtinOfflinePage), "offline-page"), OutcomeOfflinePage, nil
}

func (r *Router) static(req *http.Request) (*http.Response, Outcome, error) {
	ctx := req.Context()
	entry, err := r.cache.Get(ctx, http.MethodGet, req.URL.String())
	if err == nil {
		return fromEntry(req, entry, "hit"), OutcomeCache, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn("cache read failed", zap.String("url", req.URL.String()), zap.Error(err))
	}

	resp, netErr := r.next.RoundTrip(req)
	if netErr == nil {
		resp, storeErr := r.store(req, resp)
		if storeErr != nil {
			return nil, OutcomeFailed, storeErr
		}
		return resp, OutcomeNetwork, nil
	}
	if isImageRequest(req) {
		if entry, cerr := r.cache.Get(ctx, http.MethodGet, r.resolve(r.placeholder)); cerr == nil {
			return fromEntry(req, entry, "placeholder"), OutcomePlaceholder, nil
		}
	}
	return nil, OutcomeFailed, netErr
}

// store buffers a 2xx GET response into the cache and returns an equivalent response.
func (r *Router) store(req *http.Request, resp *http.Response) (*http.Response, error) {
	if req.Method != http.MethodGet || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxCachedBody {
		// Too large to cache: serve the buffered prefix followed by the rest of the stream.
		r.logger.Debug("response too large to cache", zap.String("url", req.URL.String()))
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return resp, nil
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	entry := cache.Entry{
		Method: http.MethodGet,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
		Header: cacheableHeader(resp.Header),
		Body:   body,
	}
	if err := r.cache.Put(req.Context(), entry); err != nil {
		r.logger.Warn("cache write failed", zap.String("url", entry.URL), zap.Error(err))
	}
	return resp, nil
}

func (r *Router) sameOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	return strings.EqualFold(u.Host, r.origin.Host) &&
		(u.Scheme == "" || strings.EqualFold(u.Scheme, r.origin.Scheme))
}

func (r *Router) resolve(p string) string {
	return r.origin.ResolveReference(&url.URL{Path: p}).String()
}

func acceptsHTML(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
			return true
		}
	}
	return false
}

func isImageRequest(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Dest") == "image" {
		return true
	}
	if strings.HasPrefix(req.Header.Get("Accept"), "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(req.URL.Path))]
}

func cacheableHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, hop := range []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Set-Cookie", "Date"} {
		out.Del(hop)
	}
	return out
}

func fromEntry(req *http.Request, entry cache.Entry, marker string) *http.Response {
	return synthesize(req, entry.Status, entry.Header.Clone(), entry.Body, marker)
}

func synthesize(req *http.Request, status int, header http.Header, body []byte, marker string) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	if marker != "" {
		header.Set(CacheHeader, marker)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

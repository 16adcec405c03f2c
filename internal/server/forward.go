package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cevalogistics/launcher/internal/metrics"
)

// hopHeaders are connection-scoped and not copied between hops.
var hopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate",
	"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// responseSkip are upstream headers the router sets itself.
var responseSkip = map[string]bool{
	"Content-Length":   true,
	"Content-Encoding": true,
	"Content-Type":     true,
}

// forward sends the request to the backend origin with path and query
// untouched and relays the answer. Only POST, PUT and PATCH carry a body.
func (r *Router) forward(c *gin.Context) {
	in := c.Request
	target := r.cfg.BackendOrigin + in.URL.EscapedPath()
	if in.URL.RawQuery != "" {
		target += "?" + in.URL.RawQuery
	}

	var body io.Reader
	switch in.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		b, err := io.ReadAll(in.Body)
		if err != nil {
			r.proxyError(c, fmt.Errorf("read request body: %w", err))
			return
		}
		body = bytes.NewReader(b)
	}

	out, err := http.NewRequestWithContext(in.Context(), in.Method, target, body)
	if err != nil {
		r.proxyError(c, err)
		return
	}
	out.Header = in.Header.Clone()
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	start := time.Now()
	resp, err := r.client.Do(out)
	metrics.ObserveUpstream(in.Method, time.Since(start).Seconds())
	if err != nil {
		r.log.Warn("backend connection error", "method", in.Method, "target", target, "error", err)
		writeJSON(c, http.StatusBadGateway, errorResp{Error: "backend connection error: " + err.Error()})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		r.proxyError(c, fmt.Errorf("read upstream body: %w", err))
		return
	}
	payload, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		r.proxyError(c, err)
		return
	}

	ct := resp.Header.Get("Content-Type")
	var doc any
	jsonBody := isJSON(ct) && len(bytes.TrimSpace(payload)) > 0
	if jsonBody {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			r.proxyError(c, fmt.Errorf("decode upstream JSON: %w", err))
			return
		}
	}

	r.copyHeaders(c.Writer.Header(), resp.Header)
	switch {
	case jsonBody:
		c.Header("Content-Type", ct)
		c.Status(resp.StatusCode)
		_ = json.NewEncoder(c.Writer).Encode(doc)
	case len(payload) == 0:
		// NoRoute handlers start from a 404 that gin fills with its own
		// body unless the header is written here.
		c.Status(resp.StatusCode)
		c.Writer.WriteHeaderNow()
	default:
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		c.Data(resp.StatusCode, ct, payload)
	}
}

func (r *Router) copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if responseSkip[k] {
			continue
		}
		if r.cfg.CORS && strings.HasPrefix(k, "Access-Control-") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

func (r *Router) proxyError(c *gin.Context, err error) {
	r.log.Error("proxy error", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: "proxy error: " + err.Error()})
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

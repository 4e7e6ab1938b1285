package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rhuss/kette/pkg/message"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
}

func isHopHeader(name string) bool {
	return slices.ContainsFunc(hopHeaders, func(h string) bool { return strings.EqualFold(h, name) })
}

// Proxy returns a terminal unit that forwards every request to upstream and
// answers with the upstream response. The upstream body is streamed back
// as the response body. A nil client uses a client without timeout; bound
// requests with Timeout instead.
func Proxy(upstream *url.URL, client *http.Client) Middleware {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	base := *upstream

	return MiddlewareFunc(func(ctx context.Context, req *message.Request, _ Handler) (*message.Response, error) {
		target := base
		target.Path = joinPath(base.Path, req.Path())
		target.RawPath = ""
		switch in := req.URL().RawQuery; {
		case base.RawQuery == "":
			target.RawQuery = in
		case in != "":
			target.RawQuery = base.RawQuery + "&" + in
		}

		out, err := http.NewRequestWithContext(ctx, req.Method(), target.String(), req.Body())
		if err != nil {
			return nil, message.NewBadGatewayError("building upstream request failed", err)
		}
		for name, values := range req.Header().All() {
			if isHopHeader(name) {
				continue
			}
			out.Header[name] = slices.Clone(values)
		}
		if cl := req.Header().Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				out.ContentLength = n
			}
		}
		out.Header.Set("X-Forwarded-Host", req.Host())
		out.Header.Set("X-Forwarded-Proto", req.URL().Scheme)

		upstreamResp, err := client.Do(out)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, ctxErr
			}
			return nil, message.NewBadGatewayError("upstream request failed", err)
		}

		resp := message.NewResponse(upstreamResp.StatusCode).
			WithStatus(upstreamResp.StatusCode, reasonPhrase(upstreamResp))
		names := make([]string, 0, len(upstreamResp.Header))
		for name := range upstreamResp.Header {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if isHopHeader(name) {
				continue
			}
			resp = resp.WithHeader(name, upstreamResp.Header[name]...)
		}
		if upstreamResp.ContentLength >= 0 && !resp.Header().Has("Content-Length") {
			resp = resp.WithHeader("Content-Length", strconv.FormatInt(upstreamResp.ContentLength, 10))
		}
		return resp.WithBody(upstreamResp.Body), nil
	})
}

func joinPath(base, path string) string {
	switch {
	case base == "" || base == "/":
		return path
	case path == "" || path == "/":
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// reasonPhrase extracts the reason from a status line such as "200 OK".
func reasonPhrase(resp *http.Response) string {
	return strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" ")
}

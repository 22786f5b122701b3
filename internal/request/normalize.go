package request

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// FromHTTP normalizes an inbound request: method uppercased, header names
// lowercased, query pairs kept in arrival order, body read up to maxBody
// bytes. The request body is consumed; callers forwarding upstream should
// rebuild it from Payload.Body.
func FromHTTP(r *http.Request, maxBody int) (*Payload, error) {
	p := &Payload{
		Method:  strings.ToUpper(r.Method),
		Path:    r.URL.Path,
		Headers: make(map[string]string, len(r.Header)),
	}

	for name, values := range r.Header {
		if len(values) > 0 {
			p.Headers[strings.ToLower(name)] = values[0]
		}
	}

	p.QueryParams = parseQuery(r.URL.RawQuery)

	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, int64(maxBody)))
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		p.Body = string(body)
	}

	p.SourceIP = clientIP(r, p.Headers)
	p.UserAgent = p.Headers["user-agent"]

	return p, nil
}

// parseQuery keeps repeated names and arrival order, unlike url.ParseQuery
// which collapses into a map.
func parseQuery(raw string) []QueryParam {
	if raw == "" {
		return nil
	}

	var params []QueryParam
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		params = append(params, QueryParam{Name: name, Value: value})
	}
	return params
}

func clientIP(r *http.Request, headers map[string]string) string {
	if fwd := headers["x-forwarded-for"]; fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

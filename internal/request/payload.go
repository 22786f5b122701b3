// Package request holds the normalized form of an inbound HTTP request and
// its stable fingerprint, used as the verdict cache key and the audit
// correlation id.
package request

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// QueryParam preserves repeated names and their original order.
type QueryParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Payload is the normalized request handed to the Judge. Method is an
// uppercase token and header names are lowercased; the body is truncated at
// the configured cap before it gets here.
type Payload struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	QueryParams []QueryParam      `json:"query_params,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	SourceIP    string            `json:"ip_addr,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`

	fingerprint string
}

// Fingerprint returns the SHA-256 hex digest over method, path, sorted query
// pairs and body bytes. Two payloads that normalize identically share a
// fingerprint.
func (p *Payload) Fingerprint() string {
	if p.fingerprint == "" {
		p.fingerprint = computeFingerprint(p.Method, p.Path, p.QueryParams, p.Body)
	}
	return p.fingerprint
}

func computeFingerprint(method, path string, params []QueryParam, body string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))

	sorted := make([]QueryParam, len(params))
	copy(sorted, params)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Value < sorted[j].Value
	})
	for _, qp := range sorted {
		h.Write([]byte(qp.Name))
		h.Write([]byte(qp.Value))
	}

	h.Write([]byte(body))

	return hex.EncodeToString(h.Sum(nil))
}

// Header returns a header value by its lowercased name.
func (p *Payload) Header(name string) string {
	return p.Headers[strings.ToLower(name)]
}

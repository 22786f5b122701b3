// Package proxy is the glue between the HTTP server and the Judge: it
// normalizes the inbound request, applies the verdict, and relays upstream
// traffic verbatim.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/judge"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/request"
)

type Handler struct {
	judge     *judge.Judge
	forwarder *Forwarder
	maxBody   int
}

// blockedResponse is the minimal body returned to blocked clients.
type blockedResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func NewHandler(j *judge.Judge, f *Forwarder, maxBody int) *Handler {
	return &Handler{
		judge:     j,
		forwarder: f,
		maxBody:   maxBody,
	}
}

// Handle judges the request and either rejects it with 403 or relays it to
// the upstream. Flagged requests are forwarded but logged at warn.
func (h *Handler) Handle(c echo.Context) error {
	r := c.Request()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return h.errorResponse(c, http.StatusBadRequest, "failed to read request body")
	}

	// The payload sees at most maxBody bytes; the upstream gets all of them.
	r.Body = io.NopCloser(bytes.NewReader(body))
	payload, err := request.FromHTTP(r, h.maxBody)
	if err != nil {
		return h.errorResponse(c, http.StatusBadRequest, "failed to normalize request")
	}

	verdict := h.judge.Evaluate(r.Context(), payload)

	if verdict.IsBlock() {
		metrics.ProxyRequests.WithLabelValues("blocked").Inc()
		log.Warn().
			Str("method", payload.Method).
			Str("path", payload.Path).
			Str("ip", payload.SourceIP).
			Float64("confidence", verdict.Confidence).
			Str("reason", verdict.Reason).
			Msg("request blocked")
		return c.JSON(http.StatusForbidden, blockedResponse{
			Error:  "blocked",
			Reason: verdict.Reason,
		})
	}

	if verdict.IsFlag() {
		log.Warn().
			Str("method", payload.Method).
			Str("path", payload.Path).
			Str("ip", payload.SourceIP).
			Float64("confidence", verdict.Confidence).
			Str("reason", verdict.Reason).
			Msg("request flagged, forwarding")
	}

	return h.forward(c, bytes.NewReader(body))
}

func (h *Handler) forward(c echo.Context, body io.Reader) error {
	resp, err := h.forwarder.Forward(c.Request().Context(), c.Request(), body)
	if err != nil {
		metrics.ProxyRequests.WithLabelValues("upstream_error").Inc()
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("upstream forward failed")
		return h.errorResponse(c, http.StatusBadGateway, "upstream request failed")
	}
	defer resp.Body.Close()
	metrics.ProxyRequests.WithLabelValues("forwarded").Inc()

	return relay(c.Response(), resp)
}

// relay copies the upstream response verbatim: status, headers, body.
func relay(w *echo.Response, resp *http.Response) error {
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already on the wire; nothing left to do but log.
		return fmt.Errorf("relay upstream body: %w", err)
	}
	return nil
}

func (h *Handler) errorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

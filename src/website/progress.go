package website

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/progress"
	"github.com/thetakeaway/takeaway/src/utils"
)

const defaultHeartbeat = 15 * time.Second

func registerProgress(c *RequestContext) (*progress.Subscription, *ResponseData) {
	sub, err := c.Deps.Progress.Register(c.PathParams["jobid"])
	if err != nil {
		var res ResponseData
		switch {
		case errors.Is(err, progress.ErrInvalidJobID):
			res = c.ErrorResponse(http.StatusBadRequest, NewSafeError(err, "Invalid job id"))
		case errors.Is(err, progress.ErrRegistryFull):
			res = c.ErrorResponse(http.StatusServiceUnavailable, NewSafeError(err, "Too many progress connections are open"))
		default:
			res = c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to register progress subscription"))
		}
		return nil, &res
	}
	return sub, nil
}

func writeSSEEvent(w io.Writer, ev progress.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

/*
Streams ingestion progress for one job as Server-Sent Events. The first event
is always "connected"; the stream ends after a complete or error event, when
the client goes away, or when the subscription is replaced or evicted.
*/
func TranscriptProgress(c *RequestContext) ResponseData {
	flusher, ok := c.Res.(http.Flusher)
	if !ok {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(nil, "response writer does not support streaming"))
	}

	sub, errRes := registerProgress(c)
	if errRes != nil {
		return *errRes
	}
	defer sub.Close()

	h := c.Res.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	addCORSHeaders(c, h)
	c.Res.WriteHeader(http.StatusOK)

	if err := writeSSEEvent(c.Res, progress.ConnectedEvent); err != nil {
		return c.Hijacked()
	}
	flusher.Flush()

	heartbeat := time.NewTicker(utils.OrDefault(c.Deps.Heartbeat, defaultHeartbeat))
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Done():
			c.Logger.Debug().Str("jobId", sub.JobID).Msg("progress client disconnected")
			return c.Hijacked()
		case <-sub.Done():
			// Done and Events can be ready together. Flush what was already
			// emitted so a replaced subscription still delivers its final event.
			for _, ev := range sub.Pending() {
				if err := writeSSEEvent(c.Res, ev); err != nil {
					return c.Hijacked()
				}
				if ev.Terminal() {
					break
				}
			}
			flusher.Flush()
			return c.Hijacked()
		case ev := <-sub.Events():
			if err := writeSSEEvent(c.Res, ev); err != nil {
				return c.Hijacked()
			}
			flusher.Flush()
			if ev.Terminal() {
				return c.Hijacked()
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Res, ": heartbeat\n\n"); err != nil {
				return c.Hijacked()
			}
			flusher.Flush()
		}
	}
}

const wsWriteWait = 10 * time.Second

func websocketUpgrader(c *RequestContext) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range c.Deps.AllowedOrigins {
				if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
					return true
				}
			}
			return false
		},
	}
}

// The same stream as TranscriptProgress, as JSON text frames over a WebSocket.
func TranscriptProgressWebSocket(c *RequestContext) ResponseData {
	sub, errRes := registerProgress(c)
	if errRes != nil {
		return *errRes
	}
	defer sub.Close()

	conn, err := websocketUpgrader(c).Upgrade(c.Res, c.Req, nil)
	if err != nil {
		// Upgrade has already written an error response.
		c.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return c.Hijacked()
	}
	defer conn.Close()

	// Reading is only for noticing the client going away. Control frames are
	// handled inside ReadMessage.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev progress.Event) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(ev)
	}
	closeNormally := func() {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait),
		)
	}

	if err := send(progress.ConnectedEvent); err != nil {
		return c.Hijacked()
	}

	ping := time.NewTicker(utils.OrDefault(c.Deps.Heartbeat, defaultHeartbeat))
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			return c.Hijacked()
		case <-sub.Done():
			for _, ev := range sub.Pending() {
				if err := send(ev); err != nil {
					return c.Hijacked()
				}
				if ev.Terminal() {
					break
				}
			}
			closeNormally()
			return c.Hijacked()
		case ev := <-sub.Events():
			if err := send(ev); err != nil {
				return c.Hijacked()
			}
			if ev.Terminal() {
				closeNormally()
				return c.Hijacked()
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return c.Hijacked()
			}
		}
	}
}

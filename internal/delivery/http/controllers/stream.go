package controllers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
)

const streamHeartbeat = 25 * time.Second

// streamSnapshots subscribes and writes every snapshot as a Server-Sent Event until the client
// disconnects. Only the latest pending snapshot is kept for a slow client.
func streamSnapshots[T any](
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	m *metrics.Metrics,
	stream string,
	subscribe func(fn func(T)) (domain.Subscription, error),
) {
	latest := make(chan T, 1)
	sub, err := subscribe(func(v T) {
		for {
			select {
			case latest <- v:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	})
	if err != nil {
		helpers.WriteError(w, r, logger, err)
		return
	}
	defer sub.Unsubscribe()
	defer m.StreamOpened(stream)()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.WarnContext(r.Context(), "stream not flushable", "stream", stream, "err", err)
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case v := <-latest:
			b, err := json.Marshal(v)
			if err != nil {
				logger.ErrorContext(r.Context(), "encode snapshot", "stream", stream, "err", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", b); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

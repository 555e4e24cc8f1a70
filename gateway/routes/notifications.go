package routes

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"supplynet/core/notify"
)

const wsWriteTimeout = 10 * time.Second

type replayResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	Next          string                `json:"next"`
}

func cursorParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	cursor, err := notify.ParseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeBadRequest(w, err)
		return 0, false
	}
	return cursor, true
}

func (s *server) replayNotifications(w http.ResponseWriter, r *http.Request) {
	cursor, ok := cursorParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, errInvalidLimit)
			return
		}
		limit = parsed
	}
	page, err := s.notifications.Replay(cursor, limit)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	next := cursor
	if len(page) > 0 {
		next = page[len(page)-1].Sequence
	}
	writeJSON(w, http.StatusOK, replayResponse{
		Notifications: page,
		Next:          strconv.FormatUint(next, 10),
	})
}

func (s *server) streamNotifications(w http.ResponseWriter, r *http.Request) {
	cursor, ok := cursorParam(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Reads are not expected; CloseRead handles pings and the close handshake.
	ctx := conn.CloseRead(r.Context())
	if err := s.stream(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("notification stream failed", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *server) stream(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel, backlog, err := s.notifications.Subscribe(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	for _, n := range backlog {
		if err := writeNotification(ctx, conn, n); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeNotification(ctx, conn, n); err != nil {
				return err
			}
		}
	}
}

func writeNotification(ctx context.Context, conn *websocket.Conn, n notify.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

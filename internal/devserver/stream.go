package devserver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mvdown/internal/logging"
)

func (s *Server) sseProgress(c *gin.Context) {
	j, ok := s.lookup(c.Param("id"))
	if !ok {
		detail(c, http.StatusNotFound, "Download not found")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	idx := 0
	c.Stream(func(w io.Writer) bool {
		frame, ok, err := j.next(ctx, idx)
		if err != nil || !ok {
			return false
		}
		idx++
		c.SSEvent("progress", string(frame))
		return true
	})
}

func (s *Server) websocketProgress(c *gin.Context) {
	j, ok := s.lookup(c.Param("id"))
	if !ok {
		detail(c, http.StatusNotFound, "Download not found")
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	// Reads detect the client going away; the API never expects client frames.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for idx := 0; ; idx++ {
		frame, ok, err := j.next(ctx, idx)
		if err != nil {
			return
		}
		if !ok {
			break
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
}

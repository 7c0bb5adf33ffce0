package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/AnMoreNight/Simple-AICATS/internal/pipeline"
	"github.com/AnMoreNight/Simple-AICATS/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// #region messages

// message is one server-sent event payload.
type message struct {
	Type         string `json:"type"`
	Level        string `json:"level,omitempty"`
	Message      string `json:"message,omitempty"`
	RespondentID string `json:"respondent_id,omitempty"`
	Stage        string `json:"stage,omitempty"`
	Current      int    `json:"current,omitempty"`
	Total        int    `json:"total,omitempty"`
	Status       string `json:"status,omitempty"`
	RunID        string `json:"run_id,omitempty"`
	Processed    int    `json:"processed,omitempty"`
	Errors       int    `json:"errors,omitempty"`
	Invalid      int    `json:"invalid,omitempty"`
}

func fromEvent(e pipeline.Event) message {
	m := message{Type: "log", Level: "info", RespondentID: e.RespondentID, Stage: e.Stage, Message: e.Message}
	switch e.Kind {
	case pipeline.EventRespondentStarted:
		m.Message = fmt.Sprintf("%s: starting at %s", e.RespondentID, e.Stage)
	case pipeline.EventStageDone:
		m.Message = fmt.Sprintf("%s: %s done", e.RespondentID, e.Stage)
	case pipeline.EventRespondentDone:
		m.Type = "progress"
		m.Level = "success"
		m.Current, m.Total = e.Index, e.Total
		m.Message = fmt.Sprintf("%s completed", e.RespondentID)
	case pipeline.EventRespondentFailed:
		m.Level = "error"
	case pipeline.EventWarning:
		m.Level = "warning"
	}
	return m
}

// #endregion messages

// #region stream

// sseWriter defers the response header until the first event so an early
// ErrBusy can still be answered with 409.
type sseWriter struct {
	mu      sync.Mutex
	c       *gin.Context
	started bool
	log     *zap.Logger
}

func (w *sseWriter) send(m message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		h := w.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.c.Status(http.StatusOK)
		w.started = true
	}
	b, err := json.Marshal(m)
	if err != nil {
		w.log.Error("encode event", zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", b); err != nil {
		w.log.Debug("client gone", zap.Error(err))
		return
	}
	w.c.Writer.Flush()
}

// start runs one batch and streams its progress. The batch is bound to the
// request; a disconnecting client cancels it and the next run resumes.
func (s *Server) start(c *gin.Context) {
	if s.batch.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrBusy.Error()})
		return
	}

	w := &sseWriter{c: c, log: s.log}
	sum, err := s.batch.Run(c.Request.Context(), func(e pipeline.Event) { w.send(fromEvent(e)) })
	if errors.Is(err, service.ErrBusy) && !w.started {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.log.Error("diagnosis run", zap.String("run", sum.RunID), zap.Error(err))
		w.send(message{Type: "log", Level: "error", Message: err.Error()})
		w.send(message{Type: "status", Status: "failed", RunID: sum.RunID,
			Processed: sum.Batch.Processed, Errors: sum.Batch.Errors, Invalid: sum.Invalid})
		return
	}
	w.send(message{
		Type:      "status",
		Status:    "completed",
		RunID:     sum.RunID,
		Processed: sum.Batch.Processed,
		Errors:    sum.Batch.Errors,
		Invalid:   sum.Invalid,
		Message:   fmt.Sprintf("processed %d, errors %d", sum.Batch.Processed, sum.Batch.Errors),
	})
}

// #endregion stream

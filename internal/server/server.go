// Package server exposes the batch service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/pipeline"
	"github.com/AnMoreNight/Simple-AICATS/internal/service"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// #region collaborators

// Batch is the service surface the server drives.
type Batch interface {
	Run(ctx context.Context, obs pipeline.Observer) (service.Summary, error)
	Status(ctx context.Context) (service.Status, error)
	Running() bool
}

// Results reads persisted diagnoses.
type Results interface {
	LoadRespondent(ctx context.Context, id string) (diagnosis.Respondent, error)
	ReadStageArtifact(ctx context.Context, respondentID string, stage diagnosis.Stage, out any) (bool, error)
}

// #endregion collaborators

// #region server

// Server holds the routes.
type Server struct {
	batch   Batch
	results Results
	log     *zap.Logger
	engine  *gin.Engine
}

// New builds the router.
func New(batch Batch, results Results, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{batch: batch, results: results, log: log.Named("server")}

	r := gin.New()
	r.Use(requestID(), accessLog(s.log), recovery(s.log), cors())
	api := r.Group("/api")
	api.GET("/health", s.health)
	api.GET("/diagnosis/status", s.status)
	api.POST("/diagnosis/start", s.start)
	api.GET("/respondents/:id/diagnosis", s.diagnosis)
	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// #endregion server

// #region handlers

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (s *Server) status(c *gin.Context) {
	st, err := s.batch.Status(c.Request.Context())
	if err != nil {
		s.log.Error("status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// diagnosisResponse is the persisted result of one respondent.
type diagnosisResponse struct {
	RespondentID string                       `json:"respondent_id"`
	Name         string                       `json:"name"`
	Status       string                       `json:"status"`
	Diagnosis    diagnosis.FinalDiagnosis     `json:"diagnosis"`
	Consistency  *diagnosis.ConsistencyReport `json:"consistency,omitempty"`
}

func (s *Server) diagnosis(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	r, err := s.results.LoadRespondent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "respondent " + id + " not found"})
		return
	}
	if err != nil {
		s.log.Error("load respondent", zap.String("respondent", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := diagnosisResponse{RespondentID: r.ID, Name: r.Name, Status: r.Status}
	ok, err := s.results.ReadStageArtifact(ctx, id, diagnosis.StageSynthesis, &resp.Diagnosis)
	if err != nil {
		s.log.Error("read diagnosis", zap.String("respondent", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no diagnosis for " + id})
		return
	}

	var report diagnosis.ConsistencyReport
	ok, err = s.results.ReadStageArtifact(ctx, id, diagnosis.StageConsistency, &report)
	if err != nil {
		s.log.Error("read consistency report", zap.String("respondent", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ok {
		resp.Consistency = &report
	}
	c.JSON(http.StatusOK, resp)
}

// #endregion handlers

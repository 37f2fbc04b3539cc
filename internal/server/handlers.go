package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"text2sql/internal/apperrors"
	"text2sql/internal/assistant"
	"text2sql/internal/logger"
	"text2sql/internal/metrics"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse reports liveness and the tables the model can see
type HealthResponse struct {
	Status   string   `json:"status"`
	Tables   []string `json:"tables"`
	Model    string   `json:"model,omitempty"`
	Version  string   `json:"version,omitempty"`
	Database string   `json:"database,omitempty"`
}

// Text2SQLRequest asks one question. Execute defaults to true.
type Text2SQLRequest struct {
	Question string `json:"question" binding:"required"`
	Execute  *bool  `json:"execute"`
}

// ValidateRequest checks a statement without running it
type ValidateRequest struct {
	SQL string `json:"sql" binding:"required"`
}

// ScoreRequest compares predicted SQL with a reference
type ScoreRequest struct {
	PredictedSQL   string `json:"predicted_sql" binding:"required"`
	GroundTruthSQL string `json:"ground_truth_sql" binding:"required"`
}

// ScoreResponse carries the SQL-level and per-clause scores
type ScoreResponse struct {
	SQLMetrics      metrics.SQLMetrics       `json:"sql_metrics"`
	ComponentScores map[string]metrics.Score `json:"component_scores"`
}

// handleHealth always answers ok; a database that cannot be introspected
// shows up as an empty table list.
func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:  "ok",
		Tables:  []string{},
		Model:   s.assistant.ModelName(),
		Version: s.version,
	}
	schema, err := s.assistant.Schema(c.Request.Context())
	if err != nil {
		s.logger.Warn("health: schema unavailable", zap.String("error", logger.SanitizeError(err)))
	} else if len(schema.Tables) > 0 {
		resp.Tables = schema.Tables
	}
	if version, err := s.assistant.DatabaseVersion(c.Request.Context()); err == nil {
		resp.Database = version
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleText2SQL(c *gin.Context) {
	var req Text2SQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}
	execute := req.Execute == nil || *req.Execute

	ans, err := s.assistant.Ask(c.Request.Context(), req.Question, execute)
	if err != nil {
		s.metrics.questions.WithLabelValues(outcomeFailed).Inc()
		status, code := statusFor(err)
		c.JSON(status, ErrorResponse{Error: logger.SanitizeError(err), Code: code})
		return
	}

	s.metrics.generation.Observe(ans.GenerationTime)
	switch {
	case ans.Safety != nil && !ans.Safety.Safe:
		s.metrics.questions.WithLabelValues(outcomeUnsafe).Inc()
	case ans.Error != "":
		s.metrics.questions.WithLabelValues(outcomeExecutionError).Inc()
	case ans.Executed():
		s.metrics.questions.WithLabelValues(outcomeExecuted).Inc()
		s.metrics.execution.Observe(ans.ExecutionTime)
	default:
		s.metrics.questions.WithLabelValues(outcomeGenerated).Inc()
	}
	// unsafe SQL and execution errors are answers, not transport failures
	c.JSON(http.StatusOK, ans)
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, s.assistant.Validate(req.SQL))
}

// handleVerify dry-runs and executes a statement and reports what a
// careful reviewer would flag
func (s *Server) handleVerify(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, s.assistant.Verify(c.Request.Context(), req.SQL))
}

func (s *Server) handleScore(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}
	m, cm := s.assistant.Score(req.PredictedSQL, req.GroundTruthSQL)
	c.JSON(http.StatusOK, ScoreResponse{SQLMetrics: m, ComponentScores: cm.Scores()})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion):
		return http.StatusBadRequest, "invalid_question"
	case errors.Is(err, apperrors.ErrModelLoad):
		return http.StatusServiceUnavailable, "model_unavailable"
	case errors.Is(err, apperrors.ErrDatabaseConnection):
		return http.StatusServiceUnavailable, "database_unavailable"
	case errors.Is(err, apperrors.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusBadGateway, "generation_failed"
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finsight-ai/finsight/pkg/history"
	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/queue"
)

// SubmitQueryRequest is the body of POST /api/v1/queries.
type SubmitQueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// SubmitQueryResponse acknowledges an enqueued query.
type SubmitQueryResponse struct {
	QueryID string `json:"query_id"`
	Status  string `json:"status"`
}

// QueryResponse describes one query run, live or archived.
type QueryResponse struct {
	QueryID     string                  `json:"query_id"`
	Query       string                  `json:"query"`
	Status      string                  `json:"status"`
	Error       string                  `json:"error,omitempty"`
	SubmittedAt time.Time               `json:"submitted_at"`
	FinishedAt  *time.Time              `json:"finished_at,omitempty"`
	Output      *model.StructuredOutput `json:"output,omitempty"`
	Component   string                  `json:"component,omitempty"`
}

// maxQueryBytes bounds the accepted query text.
const maxQueryBytes = 16 * 1024

// submitQuery handles POST /api/v1/queries: enqueue and return immediately.
func (s *Server) submitQuery(c *gin.Context) {
	var req SubmitQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Query) > maxQueryBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "query too large"})
		return
	}

	id, err := s.pool.Enqueue(req.Query)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "query queue is full, retry later"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, &SubmitQueryResponse{
		QueryID: id,
		Status:  string(queue.StatusPending),
	})
}

// getQuery handles GET /api/v1/queries/:id. Live jobs are answered from the
// pool; ids the pool no longer knows fall back to the archive.
func (s *Server) getQuery(c *gin.Context) {
	id := c.Param("id")

	if job, ok := s.pool.Job(id); ok {
		c.JSON(http.StatusOK, jobResponse(job))
		return
	}

	if s.store != nil {
		run, err := s.store.GetRun(c.Request.Context(), id)
		if err == nil {
			c.JSON(http.StatusOK, runResponse(run))
			return
		}
		if !errors.Is(err, history.ErrRunNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "query not found"})
}

// getQueryTraces handles GET /api/v1/queries/:id/traces. Live jobs answer
// from in-memory state; archived runs from the run_traces table.
func (s *Server) getQueryTraces(c *gin.Context) {
	id := c.Param("id")

	if job, ok := s.pool.Job(id); ok {
		traces := []string{}
		if job.State != nil {
			traces = job.State.DebugMessages
		}
		c.JSON(http.StatusOK, gin.H{"query_id": id, "traces": traces})
		return
	}

	if s.store != nil {
		_, err := s.store.GetRun(c.Request.Context(), id)
		if err == nil {
			traces, err := s.store.GetTraces(c.Request.Context(), id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if traces == nil {
				traces = []string{}
			}
			c.JSON(http.StatusOK, gin.H{"query_id": id, "traces": traces})
			return
		}
		if !errors.Is(err, history.ErrRunNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "query not found"})
}

// listQueries handles GET /api/v1/queries: recent archived runs.
func (s *Server) listQueries(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"queries": []QueryResponse{}})
		return
	}

	runs, err := s.store.ListRecentRuns(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]QueryResponse, 0, len(runs))
	for i := range runs {
		out = append(out, *runResponse(&runs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"queries": out})
}

// cancelQuery handles DELETE /api/v1/queries/:id.
func (s *Server) cancelQuery(c *gin.Context) {
	id := c.Param("id")
	if !s.pool.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cancellable query with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query_id": id, "status": string(queue.StatusCancelled)})
}

// health handles GET /api/v1/health.
func (s *Server) health(c *gin.Context) {
	poolHealth := s.pool.Health()
	body := gin.H{
		"status": "healthy",
		"pool":   poolHealth,
	}

	status := http.StatusOK
	if !poolHealth.IsHealthy {
		body["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["history"] = gin.H{"reachable": false, "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			body["history"] = gin.H{"reachable": true}
		}
	}

	c.JSON(status, body)
}

func jobResponse(job queue.Job) *QueryResponse {
	resp := &QueryResponse{
		QueryID:     job.ID,
		Query:       job.Query,
		Status:      string(job.Status),
		Error:       job.Error,
		SubmittedAt: job.SubmittedAt,
	}
	if !job.FinishedAt.IsZero() {
		t := job.FinishedAt
		resp.FinishedAt = &t
	}
	if job.State != nil {
		resp.Output = job.State.StructuredOutput
		resp.Component = job.State.TypescriptComponent
	}
	return resp
}

func runResponse(run *history.Run) *QueryResponse {
	resp := &QueryResponse{
		QueryID:     run.ID,
		Query:       run.Query,
		Status:      run.Status,
		Error:       run.Error,
		SubmittedAt: run.SubmittedAt,
		FinishedAt:  run.FinishedAt,
	}
	if run.State != nil {
		resp.Output = run.State.StructuredOutput
		resp.Component = run.State.TypescriptComponent
	}
	return resp
}

package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"pharmaclaw/src/internal/args"
	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/interpreter"
	"pharmaclaw/src/internal/pipeline"
	"pharmaclaw/src/internal/scripts"
	"pharmaclaw/src/internal/skills"
	"pharmaclaw/src/internal/storage"
)

// Version is reported by the health endpoints.
var Version = "1.0.0"

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var usageErr *args.UsageError
	var interpErr *interpreter.Error
	switch {
	case errors.Is(err, pipeline.ErrBadRequest), errors.As(err, &usageErr):
		return http.StatusBadRequest
	case errors.As(err, &interpErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, skills.ErrSkillNotFound), errors.Is(err, storage.ErrRunNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version, "agents": pipeline.Agents})
}

// The three agent endpoints keep the {"detail": ...} error body their
// web clients expect.
func agentError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("agent request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}

func (s *Server) handleChemistry(c *gin.Context) {
	var req pipeline.ChemistryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	res, err := gw.Pipe().Chemistry(c.Request.Context(), req)
	if err != nil {
		agentError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePharmacology(c *gin.Context) {
	var req pipeline.PharmacologyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	res, err := gw.Pipe().Pharmacology(c.Request.Context(), req)
	if err != nil {
		agentError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCatalyst(c *gin.Context) {
	var req pipeline.CatalystRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	res, err := gw.Pipe().Catalyst(c.Request.Context(), req)
	if err != nil {
		agentError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// tail keeps the last n bytes of captured stderr for error responses.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}

func (s *Server) handleCompare(c *gin.Context) {
	var req pipeline.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	// reports always land in the reports dir so they can be downloaded
	req.Output = ""
	req.OutputDir = gw.Storage.ReportsDir()

	var stdout, stderr bytes.Buffer
	res, err := gw.Pipe().Compare(c.Request.Context(), req, chain.IO{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		var stageErr *chain.StageError
		if errors.As(err, &stageErr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":  err.Error(),
				"stages": stageErr.Results,
				"stderr": tail(stderr.Bytes(), 4096),
			})
			return
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	rel, err := filepath.Rel(gw.Storage.ReportsDir(), res.OutputPath)
	if err != nil {
		rel = filepath.Base(res.OutputPath)
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      res.RunID,
		"output_path": res.OutputPath,
		"format":      res.Format,
		"interpreter": res.Interpreter,
		"stages":      res.Stages,
		"download":    "/api/v1/files/" + filepath.ToSlash(rel),
	})
}

type batchRequest struct {
	Compounds    []string `json:"compounds" binding:"required"`
	Concurrency  int      `json:"concurrency,omitempty"`
	IncludeRetro bool     `json:"include_retro,omitempty"`
}

func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Compounds) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "compounds must not be empty"})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	res, err := gw.Pipe().Batch(c.Request.Context(), req.Compounds, req.Concurrency, req.IncludeRetro)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

type toolShort struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListTools(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	ctx := c.Request.Context()

	res := make([]toolShort, 0)
	for _, t := range gw.Skills.AllTools() {
		info, err := t.Info(ctx)
		if err != nil {
			continue
		}
		res = append(res, toolShort{Name: info.Name, Description: info.Desc})
	}
	c.JSON(http.StatusOK, res)
}

// handleInvokeTool passes the request body to the tool as its JSON
// arguments and returns the tool's JSON output unchanged.
func (s *Server) handleInvokeTool(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	ctx := c.Request.Context()

	t, ok := gw.Skills.FindTool(ctx, c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tool not found"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := t.InvokableRun(ctx, string(body))
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, scripts.ErrScriptNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(out))
}

func (s *Server) handleGetFile(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	reportsDir, err := filepath.Abs(gw.Storage.ReportsDir())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Limit access to the reports directory
	cleanSubPath := filepath.Clean("/" + c.Param("filepath"))
	absFile := filepath.Join(reportsDir, cleanSubPath)
	rel, err := filepath.Rel(reportsDir, absFile)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	info, err := os.Stat(absFile)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found in reports folder"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot download directory"})
		return
	}

	c.File(absFile)
}

package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/storage"
	"pharmaclaw/src/internal/system"
	"pharmaclaw/src/internal/tasks"
	"pharmaclaw/src/internal/watchlist"
)

func (s *Server) handleAdminHealth(c *gin.Context) {
	c.JSON(http.StatusOK, adminHealthResponse{
		Status:  "ok",
		Message: "Admin API is operational",
		Version: Version,
		System:  system.GetInfo(),
		Memory:  system.ReadMemory(),
	})
}

type adminHealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string        `json:"version"`
	System  system.Info   `json:"system"`
	Memory  system.Memory `json:"memory"`
}

func (s *Server) handleGetConfig(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gw.Config())
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var cfg config.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	current := gw.Config()
	// the storage location is fixed for the lifetime of the server
	cfg.StorageDir = current.StorageDir
	if cfg.SkillsDir == "" {
		cfg.SkillsDir = current.SkillsDir
	}
	cfg.KeepSecretRefs(current)
	if err := gw.UpdateConfig(&cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "config updated"})
}

type ChannelActionReq struct {
	Channel string `json:"channel" binding:"required"`
	Action  string `json:"action" binding:"required,oneof=status send"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleChannels(c *gin.Context) {
	var req ChannelActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	switch req.Action {
	case "status":
		c.JSON(http.StatusOK, gw.ChannelStatus(req.Channel))
	case "send":
		if req.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message required for send"})
			return
		}
		if err := gw.ChannelSend(req.Channel, req.Target, req.Message); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}

func (s *Server) handleInterpreter(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gw.InterpreterStatus(c.Request.Context()))
}

type skillShort struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags"`
	Scripts     []string `json:"scripts"`
}

func (s *Server) handleListSkills(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	list := gw.Skills.GetSkills()
	if q := c.Query("q"); q != "" {
		list = gw.Skills.Search(q)
	}

	res := make([]skillShort, 0, len(list))
	for _, sk := range list {
		res = append(res, skillShort{
			Name:        sk.Name,
			Description: sk.Description,
			Version:     sk.Version,
			Tags:        sk.Tags,
			Scripts:     sk.Scripts,
		})
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetSkill(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	sk, ok := gw.Skills.GetSkill(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        sk.Name,
		"description": sk.Description,
		"version":     sk.Version,
		"tags":        sk.Tags,
		"scripts":     sk.Scripts,
		"directory":   sk.Directory,
		"content":     sk.FullContent,
	})
}

func (s *Server) handleRemoveSkill(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	if err := gw.RemoveSkill(c.Param("name")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "skill removed"})
}

type installSkillRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleInstallSkill(c *gin.Context) {
	var req installSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gw := c.MustGet("gateway").(*gateway.Gateway)
	sk, err := gw.InstallSkill(c.Request.Context(), req.Name, req.URL)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "skill installed", "name": sk.Name})
}

func (s *Server) handleReloadSkills(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	list, err := gw.ReloadSkills()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "skills reloaded", "count": len(list)})
}

func (s *Server) handleListRemoteSkills(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	items, err := gw.ClawHub().SearchSkills(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleGetRemoteSkill(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	detail, err := gw.ClawHub().GetSkill(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleListWatchlist(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	entries, err := gw.Storage.ListWatchlist()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*watchlist.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleAddWatch(c *gin.Context) {
	var e watchlist.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e.ID = ""

	gw := c.MustGet("gateway").(*gateway.Gateway)
	if err := gw.AddWatch(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) handleGetWatch(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	e, err := gw.Storage.LoadWatch(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "watchlist entry not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleUpdateWatch(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	existing, err := gw.Storage.LoadWatch(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "watchlist entry not found"})
		return
	}

	var e watchlist.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e.ID = existing.ID
	e.Created = existing.Created
	if err := gw.AddWatch(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleDeleteWatch(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	if err := gw.Storage.DeleteWatch(c.Param("id")); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "watchlist entry not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "watchlist entry removed"})
}

func (s *Server) handleListTasks(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	list, err := gw.ListTasks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetTask(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	task, err := gw.GetTask(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleAddTask(c *gin.Context) {
	var t tasks.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.ID = ""

	gw := c.MustGet("gateway").(*gateway.Gateway)
	if err := gw.AddTask(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	existing, err := gw.GetTask(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	var t tasks.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.ID = existing.ID
	t.Created = existing.Created
	t.LastRun = existing.LastRun
	t.LastExitCode = existing.LastExitCode
	t.LastRunID = existing.LastRunID
	if err := gw.AddTask(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	if err := gw.DeleteTask(c.Param("id")); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "task removed"})
}

func (s *Server) handleRunTask(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	report, err := gw.RunTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleListHistory(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := gw.History.List(c.Request.Context(), c.Query("kind"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetHistory(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	run, err := gw.History.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

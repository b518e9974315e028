package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/brochure-composer/pkg/loader"
	"github.com/menta2k/brochure-composer/pkg/store"
)

// listTemplates returns every template, or only those assigned to ?user=.
func (s *Server) listTemplates(c *gin.Context) {
	var (
		ts  []*store.Template
		err error
	)
	if user := c.Query("user"); user != "" {
		ts, err = store.ForUser(c.Request.Context(), s.store, user)
	} else {
		ts, err = s.store.List(c.Request.Context())
	}
	if err != nil {
		s.logger.Error("failed to list templates", zap.Error(err))
		failErr(c, "failed to list templates", err)
		return
	}
	ok(c, "ok", ts)
}

func (s *Server) getTemplate(c *gin.Context) {
	t, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, "template not found", err)
		return
	}
	ok(c, "ok", t)
}

// validBaseRef reports whether ref is empty or loadable without touching
// the server's filesystem.
func validBaseRef(ref string) bool {
	return ref == "" || loader.IsFetchable(ref)
}

func (s *Server) createTemplate(c *gin.Context) {
	var t store.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		fail(c, http.StatusBadRequest, "invalid template", err)
		return
	}
	t.ID = ""
	t.BaseImageRef = loader.NormalizeDriveURL(t.BaseImageRef)
	if !validBaseRef(t.BaseImageRef) {
		fail(c, http.StatusBadRequest, "baseImageRef must be an http(s) url or a data uri", nil)
		return
	}
	if err := s.store.Save(c.Request.Context(), &t); err != nil {
		s.logger.Error("failed to create template", zap.Error(err))
		failErr(c, "failed to save template", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Message: "created", Data: &t})
}

// putTemplate replaces a template, typically after an authoring session
// rewrote its regions.
func (s *Server) putTemplate(c *gin.Context) {
	id := c.Param("id")
	existing, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, "template not found", err)
		return
	}
	var t store.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		fail(c, http.StatusBadRequest, "invalid template", err)
		return
	}
	t.ID = id
	t.CreatedAt = existing.CreatedAt
	t.BaseImageRef = loader.NormalizeDriveURL(t.BaseImageRef)
	if !validBaseRef(t.BaseImageRef) {
		fail(c, http.StatusBadRequest, "baseImageRef must be an http(s) url or a data uri", nil)
		return
	}
	if err := s.store.Save(c.Request.Context(), &t); err != nil {
		s.logger.Error("failed to save template", zap.String("id", id), zap.Error(err))
		failErr(c, "failed to save template", err)
		return
	}
	ok(c, "saved", &t)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, "failed to delete template", err)
		return
	}
	ok(c, "deleted", nil)
}

type assignRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (s *Server) assignUser(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "user_id is required", err)
		return
	}
	if err := store.Assign(c.Request.Context(), s.store, c.Param("id"), req.UserID); err != nil {
		failErr(c, "failed to assign template", err)
		return
	}
	ok(c, "assigned", nil)
}

func (s *Server) unassignUser(c *gin.Context) {
	if err := store.Unassign(c.Request.Context(), s.store, c.Param("id"), c.Param("user")); err != nil {
		failErr(c, "failed to unassign template", err)
		return
	}
	ok(c, "unassigned", nil)
}

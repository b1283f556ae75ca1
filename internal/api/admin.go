package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visitordesk/internal/auth"
	"visitordesk/internal/backend"
	"visitordesk/internal/journal"
	"visitordesk/internal/visitor"
)

func (s *Server) adminUpstream(c *gin.Context) Upstream {
	sess, _ := auth.SessionFrom(c)
	return s.Upstream(sess.UpstreamToken)
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.adminUpstream(c).ListUsers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func bindUser(c *gin.Context, creating bool) (backend.User, bool) {
	var u backend.User
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return u, false
	}
	if u.Name == "" || u.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
		return u, false
	}
	if creating && u.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return u, false
	}
	if auth.NormalizeRole(u.Role) == auth.RoleOffice && !visitor.Office(u.Office).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "office accounts need a valid office"})
		return u, false
	}
	return u, true
}

func (s *Server) createUser(c *gin.Context) {
	u, ok := bindUser(c, true)
	if !ok {
		return
	}
	created, err := s.adminUpstream(c).CreateUser(c.Request.Context(), u)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateUser(c *gin.Context) {
	u, ok := bindUser(c, false)
	if !ok {
		return
	}
	updated, err := s.adminUpstream(c).UpdateUser(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.adminUpstream(c).DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleUser(c *gin.Context) {
	u, err := s.adminUpstream(c).ToggleUserStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) auditTrail(c *gin.Context) {
	office := c.Query("office")
	if office != "" && !visitor.Office(office).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown office"})
		return
	}
	raw, err := s.adminUpstream(c).AuditTrail(c.Request.Context(), office)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (s *Server) listJournal(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal not configured"})
		return
	}
	entries, err := s.Journal.List(c.Request.Context(), journal.Filter{
		Page:      c.Query("page"),
		VisitorID: c.Query("visitor_id"),
		Action:    c.Query("action"),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

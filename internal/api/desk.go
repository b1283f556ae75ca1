package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visitordesk/internal/auth"
	"visitordesk/internal/camera"
	"visitordesk/internal/desk"
	"visitordesk/internal/visitor"
)

var pageRoles = map[desk.PageKind]auth.Role{
	desk.PageGuard:  auth.RoleGuard,
	desk.PageOffice: auth.RoleOffice,
	desk.PageAdmin:  auth.RoleAdmin,
}

// pageAccess lets each role open its own page. Admins open every page.
func (s *Server) pageAccess(c *gin.Context) {
	kind := desk.PageKind(c.Param("page"))
	want, ok := pageRoles[kind]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown page"})
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != auth.RoleAdmin && claims.Role != want {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not allowed"})
		return
	}
	c.Next()
}

// actor describes the signed-in user acting on the requested page. Office
// staff are limited to their own office.
func actor(c *gin.Context) desk.Actor {
	sess, _ := auth.SessionFrom(c)
	a := desk.Actor{
		Page:  desk.PageKind(c.Param("page")),
		Name:  sess.Username,
		Token: sess.UpstreamToken,
	}
	if auth.Role(sess.Role) == auth.RoleOffice {
		a.Office = visitor.Office(sess.Office)
	}
	return a
}

func (s *Server) listVisitors(c *gin.Context) {
	a := actor(c)
	views, err := s.Desk.Records(a.Page, a.Office, c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitors": views})
}

func (s *Server) stats(c *gin.Context) {
	a := actor(c)
	st, err := s.Desk.Stats(a.Page, a.Office)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) listNotices(c *gin.Context) {
	p, err := s.Desk.Page(actor(c).Page)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notices": p.Notices.List()})
}

func (s *Server) dismissNotice(c *gin.Context) {
	p, err := s.Desk.Page(actor(c).Page)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !p.Notices.Dismiss(c.Param("notice")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notice not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) qrLookup(c *gin.Context) {
	var req struct {
		QR string `json:"qr" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := actor(c)
	v, err := s.Desk.LookupQR(a.Page, req.QR)
	if err != nil {
		s.fail(c, err)
		return
	}
	if a.Office != "" && v.Office != a.Office {
		s.fail(c, desk.ErrOtherOffice)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) decide(accepted bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.Desk.Decide(c.Request.Context(), actor(c), c.Param("id"), accepted)
		s.record(c, rec, err)
	}
}

func (s *Server) startProcessing(c *gin.Context) {
	rec, err := s.Desk.StartProcessing(c.Request.Context(), actor(c), c.Param("id"))
	s.record(c, rec, err)
}

func (s *Server) markProcessed(c *gin.Context) {
	rec, err := s.Desk.MarkProcessed(c.Request.Context(), actor(c), c.Param("id"))
	s.record(c, rec, err)
}

// timeIn runs the verification gate over the frames posted by the browser
// camera, or over the desk camera when none are sent.
func (s *Server) timeIn(c *gin.Context) {
	var req struct {
		Frames []string `json:"frames"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var cam camera.Opener
	if len(req.Frames) > 0 {
		frames, err := camera.NewFrames(req.Frames)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cam = frames
	}
	rec, res, err := s.Desk.TimeIn(c.Request.Context(), actor(c), c.Param("id"), cam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitor": rec, "verification": res})
}

func (s *Server) timeOut(c *gin.Context) {
	rec, err := s.Desk.TimeOut(c.Request.Context(), actor(c), c.Param("id"))
	s.record(c, rec, err)
}

func (s *Server) notify(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Desk.Notify(c.Request.Context(), actor(c), c.Param("id"), req.Message); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) editVisitor(c *gin.Context) {
	var patch desk.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := s.Desk.Edit(c.Request.Context(), actor(c), c.Param("id"), patch)
	s.record(c, rec, err)
}

func (s *Server) deleteVisitor(c *gin.Context) {
	if err := s.Desk.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) record(c *gin.Context, rec visitor.Record, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"visitordesk/internal/auth"
	"visitordesk/internal/backend"
	"visitordesk/internal/registration"
	"visitordesk/internal/visitor"
)

func (s *Server) startRegistration(c *gin.Context) {
	var req struct {
		Kind visitor.Kind `json:"kind"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Kind != "" && req.Kind != visitor.KindVisitor && req.Kind != visitor.KindAppointment {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be visitor or appointment"})
		return
	}
	d, err := s.Wizard.Start(c.Request.Context(), req.Kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) getRegistration(c *gin.Context) {
	d, err := s.Wizard.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) submitIdentity(c *gin.Context) {
	var in registration.Identity
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := s.Wizard.SubmitIdentity(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// attachIDImage accepts a multipart "file" or a JSON {"data": "<data URL>"}.
func (s *Server) attachIDImage(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		d   registration.Draft
		err error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, _, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(io.LimitReader(file, registration.MaxIDImageBytes+1))
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		d, err = s.Wizard.AttachID(ctx, id, data)
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
			return
		}
		d, err = s.Wizard.AttachIDDataURL(ctx, id, body.Data)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) submitAppointment(c *gin.Context) {
	var in registration.Appointment
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := s.Wizard.SubmitAppointment(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) registrationBack(c *gin.Context) {
	d, err := s.Wizard.Back(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) confirmRegistration(c *gin.Context) {
	conf, err := s.Wizard.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, conf)
}

func (s *Server) nextAvailable(c *gin.Context) {
	if s.Wizard.Calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calendar not configured"})
		return
	}
	from := c.Query("from")
	cal := s.Wizard.Calendar
	resp := gin.H{"date": cal.NextAvailable(c.Request.Context(), from)}
	if from != "" {
		if err := cal.Check(c.Request.Context(), from); err != nil {
			resp["reason"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) qrImage(c *gin.Context) {
	content := c.Query("content")
	if _, err := visitor.ParseQR(content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	png, err := registration.QRCode(content, queryInt(c, "size", 256))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) registerVisitorAccount(c *gin.Context) {
	var acct backend.VisitorAccount
	if err := c.ShouldBindJSON(&acct); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := registration.ValidateIdentity(registration.Identity{
		Name: acct.Name, ContactNumber: acct.ContactNumber, Email: acct.Email,
	}); err != nil {
		s.fail(c, err)
		return
	}
	if len(acct.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}
	if err := s.Upstream("").RegisterVisitorAccount(c.Request.Context(), acct); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

// visitorLogin proxies the visitor portal login. The upstream token is
// returned as-is; visitors have no console session.
func (s *Server) visitorLogin(c *gin.Context) {
	var creds backend.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil || creds.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	res, err := s.Upstream("").Login(c.Request.Context(), backend.PortalVisitor, creds)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": res.Token, "name": res.Name})
}

func (s *Server) visitorUpstream(c *gin.Context) Upstream {
	token, _ := auth.BearerToken(c)
	return s.Upstream(token)
}

func (s *Server) getAppointment(c *gin.Context) {
	rec, err := s.visitorUpstream(c).GetAppointment(c.Request.Context(), c.Param("contact"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) submitFeedback(c *gin.Context) {
	var req struct {
		Feedback string `json:"feedback" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback is required"})
		return
	}
	rec, err := s.visitorUpstream(c).SubmitFeedback(c.Request.Context(), c.Param("contact"), strings.TrimSpace(req.Feedback))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

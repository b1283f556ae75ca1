package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visitordesk/internal/auth"
	"visitordesk/internal/backend"
	"visitordesk/internal/session"
)

type loginRequest struct {
	Portal   backend.Portal `json:"portal"`
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Password string         `json:"password" binding:"required"`
}

// login authenticates against the backend portal, keeps the upstream token
// in a session and hands out console tokens bound to it.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == "" && req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username or email is required"})
		return
	}
	if req.Portal == backend.PortalVisitor {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visitor accounts sign in through /v1/visitor-auth/login"})
		return
	}

	res, err := s.Upstream("").Login(c.Request.Context(), req.Portal, backend.Credentials{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	role := auth.NormalizeRole(res.Role)
	if req.Portal == backend.PortalOffice {
		role = auth.RoleOffice
	}
	if role == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "role not allowed on the console"})
		return
	}
	if role == auth.RoleOffice && res.Office == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "office account has no office assigned"})
		return
	}

	name := req.Username
	if name == "" {
		name = req.Email
	}
	sess := session.New(res.Token, string(role), res.Office, name)
	if err := s.Sessions.Save(c.Request.Context(), sess, s.Tokens.RefreshTTL); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	s.issue(c, http.StatusOK, sess)
}

func (s *Server) issue(c *gin.Context, status int, sess session.Session) {
	tokens, err := auth.Issue(sess.ID, auth.Role(sess.Role), sess.Office, s.Tokens.Issuer, s.Tokens.SigningKey, s.Tokens.AccessTTL, s.Tokens.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          sess.Role,
		"office":        sess.Office,
		"username":      sess.Username,
	})
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, err := auth.Parse(req.RefreshToken, s.Tokens.SigningKey, s.Tokens.Issuer, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	sess, err := s.Sessions.Load(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}
	s.issue(c, http.StatusOK, sess)
}

func (s *Server) logout(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	if err := s.Sessions.Delete(c.Request.Context(), sess.ID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	c.JSON(http.StatusOK, gin.H{"username": sess.Username, "role": sess.Role, "office": sess.Office})
}

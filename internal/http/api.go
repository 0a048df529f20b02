package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"referral-hunt/internal/messaging"
	"referral-hunt/internal/service"
	"referral-hunt/internal/session"
	"referral-hunt/internal/storage"
)

// maxWebhookBody caps inbound webhook payloads.
const maxWebhookBody = 64 << 10

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth       service.AuthService
	sessions   session.Store
	cookieName string
	archive    storage.Archive
	cfg        HandlerConfig
}

type HandlerConfig struct {
	// ArchivePrefix is the object key prefix for archived inbound messages.
	ArchivePrefix string
	// Webhook validates inbound provider signatures; nil accepts every request.
	Webhook *messaging.WebhookValidator
	// WebhookURL is the public URL the provider signs; derived from the request when empty.
	WebhookURL     string
	AllowedOrigins []string
	CookieName     string
	Logger         logrus.FieldLogger
}

func NewHandler(auth service.AuthService, store session.Store, archive storage.Archive, cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = session.DefaultCookieName
	}
	if archive == nil {
		archive = storage.NopArchive{}
	}
	return &Handler{
		auth:       auth,
		sessions:   store,
		cookieName: cfg.CookieName,
		archive:    archive,
		cfg:        cfg,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.cfg.Logger), corsMiddleware(h.cfg.AllowedOrigins))

	api := router.Group("/api")
	{
		api.POST("/sendOtp", h.sendOTP)
		api.POST("/login", h.login)
		api.POST("/signup", h.signup)
		api.POST("/receiveMessage", h.receiveMessage)
		api.GET("/auth/status", h.authStatus)
		api.GET("/logout", h.logout)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

type sendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	OTP         string `json:"otp"`
}

type signupRequest struct {
	PhoneNumber string  `json:"phoneNumber" binding:"required"`
	OTP         string  `json:"otp"`
	ReferredBy  *string `json:"referredBy"`
	Name        string  `json:"Name"`
}

func (h *Handler) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	exists, err := h.auth.SendOTP(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	if sess, ok := h.session(c); ok {
		session.SetPendingPhone(sess, strings.TrimSpace(req.PhoneNumber))
		if err := sess.Save(c.Request, c.Writer); err != nil {
			logFor(c, h.cfg.Logger).WithError(err).Warn("save session")
		}
	}

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"success": true, "userExists": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "userExists": true})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.auth.Login(c.Request.Context(), req.PhoneNumber, req.OTP)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	sess, ok := h.session(c)
	if !ok {
		h.internalError(c, "Internal server error", errors.New("session unavailable"))
		return
	}
	// a cookie handed out before login must not become an authenticated one
	h.sessions.Regenerate(sess)
	session.Authenticate(sess, *user)
	if err := sess.Save(c.Request, c.Writer); err != nil {
		h.internalError(c, "Internal server error", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": userToResponse(*user)})
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.auth.Signup(c.Request.Context(), service.SignupInput{
		PhoneNumber: req.PhoneNumber,
		OTP:         req.OTP,
		ReferredBy:  req.ReferredBy,
		Name:        req.Name,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	sess, ok := h.session(c)
	if !ok {
		h.internalError(c, "Internal server error", errors.New("session unavailable"))
		return
	}
	// a cookie handed out before login must not become an authenticated one
	h.sessions.Regenerate(sess)
	session.Authenticate(sess, *user)
	if err := sess.Save(c.Request, c.Writer); err != nil {
		h.internalError(c, "Internal server error", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": userToResponse(*user)})
}

func (h *Handler) authStatus(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
		return
	}

	// touching an existing session keeps it alive
	if !sess.IsNew {
		if err := sess.Save(c.Request, c.Writer); err != nil {
			logFor(c, h.cfg.Logger).WithError(err).Warn("refresh session")
		}
	}
	c.JSON(http.StatusOK, gin.H{"isAuthenticated": session.IsAuthenticated(sess)})
}

func (h *Handler) logout(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		h.internalError(c, "Internal server error", errors.New("session unavailable"))
		return
	}

	session.Invalidate(sess)
	if err := sess.Save(c.Request, c.Writer); err != nil {
		h.internalError(c, "Internal server error", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) receiveMessage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "errorMsg": "Payload too large"})
			return
		}
		h.badRequest(c, err)
		return
	}

	contentType := c.ContentType()
	var form url.Values
	if contentType == gin.MIMEPOSTForm {
		form, err = url.ParseQuery(string(body))
		if err != nil {
			h.badRequest(c, err)
			return
		}
	}

	logger := logFor(c, h.cfg.Logger)
	if h.cfg.Webhook != nil {
		signature := c.GetHeader("X-Twilio-Signature")
		if !h.cfg.Webhook.Valid(h.webhookURL(c), flattenForm(form), signature) {
			logger.Warn("rejected inbound message with invalid signature")
			c.JSON(http.StatusForbidden, gin.H{"success": false, "errorMsg": "Invalid signature"})
			return
		}
	}

	payload := body
	if form != nil {
		if payload, err = json.Marshal(flattenForm(form)); err != nil {
			payload = body
		}
	}
	logger.WithFields(logrus.Fields{
		"from":         form.Get("From"),
		"content_type": contentType,
		"bytes":        len(body),
	}).Info("inbound message received")

	archiveCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	location, err := h.archive.Put(archiveCtx, storage.InboundKey(h.cfg.ArchivePrefix, time.Now()), payload, "application/json")
	if err != nil {
		logger.WithError(err).Warn("archive inbound message")
	} else if location != "" {
		logger.WithField("location", location).Debug("inbound message archived")
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) session(c *gin.Context) (*sessions.Session, bool) {
	sess, err := h.sessions.Get(c.Request, h.cookieName)
	if err != nil {
		logFor(c, h.cfg.Logger).WithError(err).Warn("load session")
	}
	return sess, sess != nil
}

func (h *Handler) webhookURL(c *gin.Context) string {
	if h.cfg.WebhookURL != "" {
		return h.cfg.WebhookURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func flattenForm(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

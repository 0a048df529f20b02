package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"referral-hunt/internal/domain"
	"referral-hunt/internal/service"
)

// UserResponse is the JSON shape of a user. The referral code travels as
// "uuid" for compatibility with existing clients.
type UserResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	PhoneNumber  string  `json:"phoneNumber"`
	ReferralCode string  `json:"uuid"`
	ReferredBy   *string `json:"referredBy"`
	CreatedAt    string  `json:"createdAt,omitempty"`
}

func userToResponse(user domain.User) UserResponse {
	resp := UserResponse{
		ID:           user.ID,
		Name:         user.Name,
		PhoneNumber:  user.PhoneNumber,
		ReferralCode: user.ReferralCode,
		ReferredBy:   user.ReferredBy,
	}
	if !user.CreatedAt.IsZero() {
		resp.CreatedAt = user.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPhoneRequired):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "errorMsg": "phoneNumber is required"})
	case errors.Is(err, service.ErrInvalidOTP):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "errorMsg": "Invalid OTP"})
	case errors.Is(err, service.ErrInvalidReferralCode):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "errorMsg": "Incorrect Referral Code"})
	case errors.Is(err, service.ErrUserNotRegistered):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "errorMsg": "User not registered"})
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"success": false, "errorMsg": "User already exists"})
	default:
		h.internalError(c, "Internal server error", err)
	}
}

// internalError logs err under a fresh reference and returns only the
// reference to the client.
func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	ref := "ref-" + uuid.NewString()
	logFor(c, h.cfg.Logger).WithError(err).WithField("error_ref", ref).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success":  false,
		"errorMsg": msg,
		"error":    ref,
	})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	logFor(c, h.cfg.Logger).WithError(err).Debug("rejected malformed request")
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "errorMsg": "Invalid request"})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ProfileHandler exposes the display metadata shown next to conversations.
type ProfileHandler struct {
	profileRepo repositories.ProfileRepository
	audit       *telemetry.AuditEmitter
}

func NewProfileHandler(profileRepo repositories.ProfileRepository, audit *telemetry.AuditEmitter) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo, audit: audit}
}

// GetProfile returns a user's profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profileRepo.GetProfile(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMyProfile creates or replaces the caller's profile.
func (h *ProfileHandler) UpdateMyProfile(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	saved, err := h.profileRepo.UpsertProfile(c.Request.Context(), models.Profile{UserID: userID, Name: req.Name, AvatarURL: req.AvatarURL})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save profile"})
		return
	}
	emitAudit(c, h.audit, "profile_updated", userID, "")
	c.JSON(http.StatusOK, saved)
}

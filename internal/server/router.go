package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fitcheckhq/fitcheck/backend/internal/coach"
	"github.com/fitcheckhq/fitcheck/backend/internal/users"
	"github.com/fitcheckhq/fitcheck/backend/internal/workouts"
)

const userIDContextKey = "fitcheck_user_id"

var (
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingUserService     = errors.New("user service dependency required")
	errMissingReferralService = errors.New("referral service dependency required")
	errMissingWorkoutService  = errors.New("workout service dependency required")
	errMissingCoachService    = errors.New("coach service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

type BackendTokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	TokenManager    BackendTokenManager
	UserService     *users.Service
	ReferralService *users.ReferralService
	WorkoutService  *workouts.Service
	CoachService    *coach.Service
	Logger          *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UserService == nil {
		return nil, errMissingUserService
	}
	if deps.ReferralService == nil {
		return nil, errMissingReferralService
	}
	if deps.WorkoutService == nil {
		return nil, errMissingWorkoutService
	}
	if deps.CoachService == nil {
		return nil, errMissingCoachService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		users:     deps.UserService,
		referrals: deps.ReferralService,
		workouts:  deps.WorkoutService,
		coach:     deps.CoachService,
		logger:    logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/token", handler.handleToken)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleProfile)
	protected.PUT("/me", handler.handleProfileUpdate)

	protected.POST("/workouts", handler.handleWorkoutCreate)
	protected.GET("/workouts", handler.handleWorkoutList)
	protected.GET("/workouts/:id", handler.handleWorkoutGet)
	protected.DELETE("/workouts/:id", handler.handleWorkoutDelete)

	protected.POST("/coach/chat", handler.handleCoachChat)
	protected.GET("/coach/quota", handler.handleCoachQuota)
	protected.GET("/coach/conversations", handler.handleConversationList)
	protected.GET("/coach/conversations/:id", handler.handleConversationGet)
	protected.DELETE("/coach/conversations/:id", handler.handleConversationDelete)

	protected.GET("/referrals/link", handler.handleReferralLink)

	return router, nil
}

type httpHandler struct {
	tokens    BackendTokenManager
	users     *users.Service
	referrals *users.ReferralService
	workouts  *workouts.Service
	coach     *coach.Service
	logger    *zap.Logger
}

type registerRequestPayload struct {
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	ReferralCode string `json:"referral_code"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type registerResponsePayload struct {
	User  *users.User          `json:"user"`
	Token tokenResponsePayload `json:"token"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		Email:        request.Email,
		DisplayName:  request.DisplayName,
		ReferralCode: request.ReferralCode,
	})
	switch {
	case errors.Is(err, users.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
		return
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
		return
	case err != nil:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, registerResponsePayload{
		User:  user,
		Token: tokenResponsePayload{AccessToken: token, ExpiresIn: expiresIn, TokenType: "Bearer"},
	})
}

type tokenRequestPayload struct {
	Email string `json:"email"`
}

func (h *httpHandler) handleToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), request.Email)
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{AccessToken: token, ExpiresIn: expiresIn, TokenType: "Bearer"})
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	user, err := h.users.Profile(c.Request.Context(), userID)
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("profile lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type profileUpdatePayload struct {
	FitnessGoal   string `json:"fitness_goal"`
	ActivityLevel string `json:"activity_level"`
}

func (h *httpHandler) handleProfileUpdate(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request profileUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.users.UpdateProfile(c.Request.Context(), userID,
		users.FitnessGoal(request.FitnessGoal), users.ActivityLevel(request.ActivityLevel))
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("profile update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReferralLink(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	user, err := h.users.Profile(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("profile lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"referral_code":   user.ReferralCode,
		"invitation_link": h.referrals.InvitationLink(user.ReferralCode),
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

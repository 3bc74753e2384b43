package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fitcheckhq/fitcheck/backend/internal/workouts"
)

type workoutSetPayload struct {
	Reps   int     `json:"reps"`
	Weight float64 `json:"weight"`
	Notes  string  `json:"notes,omitempty"`
}

type workoutCreatePayload struct {
	ExerciseID   string              `json:"exercise_id"`
	ExerciseName string              `json:"exercise_name"`
	Sets         []workoutSetPayload `json:"sets"`
	RPE          *float64            `json:"rpe"`
	Notes        string              `json:"notes"`
}

func (h *httpHandler) handleWorkoutCreate(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request workoutCreatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	sets := make([]workouts.SetEntry, 0, len(request.Sets))
	for _, set := range request.Sets {
		sets = append(sets, workouts.SetEntry{Reps: set.Reps, Weight: set.Weight, Notes: set.Notes})
	}

	log, err := h.workouts.CreateLog(c.Request.Context(), userID, workouts.CreateInput{
		ExerciseID:   request.ExerciseID,
		ExerciseName: request.ExerciseName,
		Sets:         sets,
		RPE:          request.RPE,
		Notes:        request.Notes,
	})
	if errors.Is(err, workouts.ErrInvalidLog) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("workout create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}
	c.JSON(http.StatusCreated, log)
}

func (h *httpHandler) handleWorkoutList(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	logs, err := h.workouts.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("workout list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if logs == nil {
		logs = []workouts.Log{}
	}
	c.JSON(http.StatusOK, gin.H{"workouts": logs})
}

func (h *httpHandler) handleWorkoutGet(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	log, err := h.workouts.Get(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, workouts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("workout lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *httpHandler) handleWorkoutDelete(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	err := h.workouts.Delete(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, workouts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("workout delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

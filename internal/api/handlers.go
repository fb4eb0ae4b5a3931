package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"planwise/internal/model"
	"planwise/internal/service"
)

type upsertPlanRequest struct {
	TaskOrder []string `json:"task_order" binding:"required"`
	Notes     string   `json:"notes"`
}

type reorderRequest struct {
	TaskOrder []string `json:"task_order" binding:"required"`
}

type completionEntryRequest struct {
	TaskID        string `json:"task_id" binding:"required"`
	Completed     bool   `json:"completed"`
	ActualMinutes *int   `json:"actual_minutes"`
	SkippedReason string `json:"skipped_reason"`
}

type completePlanRequest struct {
	Completions []completionEntryRequest `json:"completions" binding:"required"`
	Notes       string                   `json:"notes"`
	Mood        *int                     `json:"mood"`
}

type planResponse struct {
	ID        string       `json:"id"`
	PlanDate  string       `json:"plan_date"`
	TaskOrder []string     `json:"task_order"`
	Notes     string       `json:"notes,omitempty"`
	Mood      *int         `json:"mood,omitempty"`
	Tasks     []model.Task `json:"tasks,omitempty"`
}

func toPlanResponse(plan *model.DailyPlan, tasks []model.Task) planResponse {
	return planResponse{
		ID:        plan.ID,
		PlanDate:  plan.PlanDate,
		TaskOrder: plan.TaskOrder,
		Notes:     plan.Notes,
		Mood:      plan.Mood,
		Tasks:     tasks,
	}
}

func (h *Handler) upsertPlan(c *gin.Context) {
	var req upsertPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := h.plans.UpsertPlan(c.Request.Context(), currentUser(c), c.Param("date"), req.TaskOrder, req.Notes)
	if err != nil {
		planError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPlanResponse(plan, nil))
}

func (h *Handler) getPlan(c *gin.Context) {
	plan, tasks, err := h.plans.GetPlan(c.Request.Context(), currentUser(c), c.Param("date"))
	if err != nil {
		planError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPlanResponse(plan, tasks))
}

func (h *Handler) listPlans(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	plans, err := h.plans.ListPlans(c.Request.Context(), currentUser(c), days)
	if err != nil {
		planError(c, err)
		return
	}
	out := make([]planResponse, 0, len(plans))
	for i := range plans {
		out = append(out, toPlanResponse(&plans[i], nil))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func (h *Handler) reorderPlan(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := h.plans.ReorderPlan(c.Request.Context(), currentUser(c), c.Param("date"), req.TaskOrder)
	if err != nil {
		planError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPlanResponse(plan, nil))
}

func (h *Handler) completePlan(c *gin.Context) {
	var req completePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries := make([]service.CompletionEntry, 0, len(req.Completions))
	for _, e := range req.Completions {
		entries = append(entries, service.CompletionEntry{
			TaskID:        e.TaskID,
			Completed:     e.Completed,
			ActualMinutes: e.ActualMinutes,
			SkippedReason: e.SkippedReason,
		})
	}
	reflection, err := h.plans.SubmitReflection(c.Request.Context(), currentUser(c), c.Param("date"), entries, req.Notes, req.Mood)
	if err != nil {
		planError(c, err)
		return
	}
	c.JSON(http.StatusOK, reflection)
}

func (h *Handler) getReflection(c *gin.Context) {
	reflection, err := h.plans.GetReflection(c.Request.Context(), currentUser(c), c.Param("date"))
	if err != nil {
		planError(c, err)
		return
	}
	c.JSON(http.StatusOK, reflection)
}

func (h *Handler) suggestOrder(c *gin.Context) {
	userID := currentUser(c)
	tasks, err := h.plans.RemainingTasks(c.Request.Context(), userID, c.Param("date"))
	if err != nil {
		planError(c, err)
		return
	}
	suggestion, err := h.suggestions.SuggestOrder(c.Request.Context(), userID, tasks)
	if err != nil {
		planError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}

func (h *Handler) getPatterns(c *gin.Context) {
	userID := currentUser(c)
	readiness, err := h.patterns.ComputeReadiness(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pattern lookup failed"})
		return
	}
	if !readiness.Ready {
		c.JSON(http.StatusOK, gin.H{"patterns": []model.UserPattern{}, "days_until_ready": readiness.DaysUntilReady})
		return
	}
	patterns, err := h.patterns.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pattern lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

type preferencesRequest struct {
	MorningBriefingEnabled   *bool  `json:"morning_briefing_enabled"`
	MorningBriefingTime      string `json:"morning_briefing_time"`
	MiddayNudgeEnabled       *bool  `json:"midday_nudge_enabled"`
	MiddayNudgeTime          string `json:"midday_nudge_time"`
	EveningReflectionEnabled *bool  `json:"evening_reflection_enabled"`
	EveningReflectionTime    string `json:"evening_reflection_time"`
	QuietHoursStart          string `json:"quiet_hours_start"`
	QuietHoursEnd            string `json:"quiet_hours_end"`
	PushEnabled              *bool  `json:"push_enabled"`
	EmailEnabled             *bool  `json:"email_enabled"`
	TelegramEnabled          *bool  `json:"telegram_enabled"`
	TelegramChatID           *int64 `json:"telegram_chat_id"`
}

func (h *Handler) getPreferences(c *gin.Context) {
	pref, err := h.dispatcher.PreferenceOrDefault(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preference lookup failed"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

func (h *Handler) putPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Quiet hours are both set or neither.
	if (req.QuietHoursStart == "") != (req.QuietHoursEnd == "") {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "quiet_hours_start and quiet_hours_end must be set together"})
		return
	}
	for _, v := range []string{
		req.MorningBriefingTime, req.MiddayNudgeTime, req.EveningReflectionTime,
		req.QuietHoursStart, req.QuietHoursEnd,
	} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "times must be HH:MM"})
			return
		}
	}

	pref, err := h.dispatcher.PreferenceOrDefault(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preference lookup failed"})
		return
	}

	applyBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	applyBool(&pref.MorningBriefingEnabled, req.MorningBriefingEnabled)
	applyBool(&pref.MiddayNudgeEnabled, req.MiddayNudgeEnabled)
	applyBool(&pref.EveningReflectionEnabled, req.EveningReflectionEnabled)
	applyBool(&pref.PushEnabled, req.PushEnabled)
	applyBool(&pref.EmailEnabled, req.EmailEnabled)
	applyBool(&pref.TelegramEnabled, req.TelegramEnabled)
	if req.MorningBriefingTime != "" {
		pref.MorningBriefingTime = req.MorningBriefingTime
	}
	if req.MiddayNudgeTime != "" {
		pref.MiddayNudgeTime = req.MiddayNudgeTime
	}
	if req.EveningReflectionTime != "" {
		pref.EveningReflectionTime = req.EveningReflectionTime
	}
	pref.QuietHoursStart = req.QuietHoursStart
	pref.QuietHoursEnd = req.QuietHoursEnd
	if req.TelegramChatID != nil {
		pref.TelegramChatID = *req.TelegramChatID
	}

	if err := h.notifRepo.SavePreference(c.Request.Context(), pref); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preference save failed"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

type pushTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceName string `json:"device_name"`
}

func (h *Handler) addPushToken(c *gin.Context) {
	var req pushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token := &model.PushToken{
		UserID:     currentUser(c),
		Token:      req.Token,
		DeviceName: req.DeviceName,
	}
	if err := h.notifRepo.AddPushToken(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token registration failed"})
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (h *Handler) removePushToken(c *gin.Context) {
	if err := h.notifRepo.RemovePushToken(c.Request.Context(), currentUser(c), c.Param("token")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token removal failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Status(c.Request.Context()))
}

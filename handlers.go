package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/models"
	"github.com/vostoklab/workshop_backend/utils"
	"github.com/vostoklab/workshop_backend/workflow"
)

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch utils.KindOf(err) {
	case utils.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		config.LogError(config.GetLogger(), "http", c.FullPath(), "request failed", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return v, true
}

/* Receipts */

func getOrCreateReceiptHandler(c *gin.Context) {
	var input models.NewReceipt
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	receipt, err := models.GetOrCreateReceipt(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func getReceiptsHandler(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	receipts, err := models.GetReceipts(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": receipts, "total": len(receipts)})
}

func getReceiptHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	receipt, err := models.GetReceipt(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type updateDeadlineRequest struct {
	NewDeadline *time.Time `json:"new_deadline"`
}

func updateDeadlineHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req updateDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, span := tracer.Start(c.Request.Context(), "updateDeadline")
	defer span.End()
	receipt, err := workflow.ChangeDeadline(ctx, config.GetDB(), id, req.NewDeadline)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func getHistoryHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := models.GetHistoryByReceipt(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events, "total": len(events)})
}

func getHistoryEventHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	event, err := models.GetHistoryEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func getRemindersByReceiptHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	reminders, err := models.GetRemindersByReceipt(c.Request.Context(), config.GetDB(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reminders, "total": len(reminders)})
}

func otkPassHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	receipt, err := models.GetReceipt(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	event, err := models.AppendHistory(ctx, receipt.ID, models.EventOtkPassed, map[string]interface{}{
		"receipt_number": receipt.ReceiptNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

/* Returns */

func getReturnReasonsHandler(c *gin.Context) {
	reasons, err := models.GetReturnReasons(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reasons, "total": len(reasons)})
}

func getReturnHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	returnRecord, err := models.GetReturn(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, returnRecord)
}

func getReturnsByReceiptHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	returns, err := models.GetReturnsByReceipt(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": returns, "total": len(returns)})
}

func createReturnHandler(c *gin.Context) {
	var input models.NewReturn
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	returnRecord, err := models.CreateReturn(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, returnRecord)
}

/* Reminders */

func getPendingNotificationsHandler(c *gin.Context) {
	store := models.NewReminderDB(config.GetDB())
	due, err := store.QueryDue(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": due, "total": len(due)})
}

func markNotificationSentHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	store := models.NewReminderDB(config.GetDB())
	if err := store.MarkSent(c.Request.Context(), id, time.Now()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

/* Employees and stage records */

func getEmployeesHandler(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "false") == "true"
	role := c.Query("role")
	employees, err := models.GetEmployees(c.Request.Context(), activeOnly, role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": employees, "total": len(employees)})
}

func createEmployeeHandler(c *gin.Context) {
	var input models.NewEmployee
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	employee, err := models.CreateEmployee(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, employee)
}

type setEmployeeActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func setEmployeeActiveHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req setEmployeeActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	employee, err := models.SetEmployeeActive(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, employee)
}

func createOperationHandler(c *gin.Context) {
	var input models.NewOperation
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	operation, err := models.CreateOperation(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, operation)
}

func sendToPolishingHandler(c *gin.Context) {
	var input models.NewPolishingDetails
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	details, err := models.SendToPolishing(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

func getOperationsByReceiptHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	operations, err := models.GetOperationsByReceipt(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": operations, "total": len(operations)})
}

func getPolishingDetailsHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	details, err := models.GetPolishingDetails(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func markPolishingReturnedHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := models.MarkPolishingReturned(c.Request.Context(), id, time.Now()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

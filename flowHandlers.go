package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Flow sessions are keyed by chat, so each chat carries exactly one return
// conversation at a time.
func flowKey(c *gin.Context) (string, bool) {
	chatId := strings.TrimSpace(c.Param("chat_id"))
	if chatId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return "", false
	}
	return chatId, true
}

func flowStartHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	sess, err := returnFlow.Start(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type flowReceiptRequest struct {
	ReceiptNumber string `json:"receipt_number" binding:"required"`
}

func flowSetReceiptHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	var req flowReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := returnFlow.SetReceipt(c.Request.Context(), key, req.ReceiptNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func flowChooseReturnHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	sess, err := returnFlow.ChooseReturn(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type flowReasonRequest struct {
	ReasonId int `json:"reason_id" binding:"required"`
}

func flowToggleReasonHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	var req flowReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := returnFlow.ToggleReason(c.Request.Context(), key, req.ReasonId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func flowFinishReasonsHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	sess, err := returnFlow.FinishReasons(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type flowRoleRequest struct {
	Role string `json:"role" binding:"required" validate:"oneof=polisher assembler"`
}

func flowChooseRoleHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	var req flowRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := returnFlow.ChooseResponsibleRole(c.Request.Context(), key, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type flowResponsibleRequest struct {
	EmployeeId int `json:"employee_id" binding:"required"`
}

func flowChooseResponsibleHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	var req flowResponsibleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := returnFlow.ChooseResponsibleParty(c.Request.Context(), key, req.EmployeeId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type flowConfirmRequest struct {
	Comment string `json:"comment"`
}

func flowConfirmHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	var req flowConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, created, err := returnFlow.Confirm(c.Request.Context(), key, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "return": created})
}

func flowStartAnotherHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	sess, err := returnFlow.StartAnother(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func flowCancelHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	if err := returnFlow.Cancel(c.Request.Context(), key); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func flowGetHandler(c *gin.Context) {
	key, ok := flowKey(c)
	if !ok {
		return
	}
	sess, err := returnFlow.Get(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

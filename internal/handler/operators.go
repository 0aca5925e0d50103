package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gatepass/internal/auth"
	"gatepass/internal/operators"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tokens, op, err := h.Operators.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"operator":      op,
	})
}

func (h *Handler) logout(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if err := h.Operators.Logout(c.Request.Context(), claims); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createOperator(c *gin.Context) {
	var req operators.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	op, err := h.Operators.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

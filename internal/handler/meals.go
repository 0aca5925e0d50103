package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gatepass/internal/meals"
)

type mealRequest struct {
	VisitorID string         `json:"visitor_id" binding:"required"`
	MealType  meals.MealType `json:"meal_type" binding:"required"`
}

func mealView(rec meals.Record) gin.H {
	list := rec.Meals
	if list == nil {
		list = []meals.Meal{}
	}
	return gin.H{"visitor_id": rec.VisitorID, "entry_date": rec.Date(), "meals": list}
}

func (h *Handler) serveMeal(c *gin.Context) {
	var req mealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.Meals.Serve(c.Request.Context(), req.VisitorID, req.MealType)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, mealView(rec))
}

func (h *Handler) todayMeals(c *gin.Context) {
	rec, err := h.Meals.Today(c.Request.Context(), c.Param("visitor_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mealView(rec))
}

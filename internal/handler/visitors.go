package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gatepass/internal/visitors"
)

// registerVisitor accepts the multipart self-registration form.
func (h *Handler) registerVisitor(c *gin.Context) {
	data, name, err := readImage(c, "profile_image")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := h.Visitors.Register(c.Request.Context(), visitors.RegisterInput{
		Name:            c.PostForm("name"),
		Email:           c.PostForm("email"),
		InstitutionName: c.PostForm("institution"),
		LoginID:         c.PostForm("login_id"),
		Password:        c.PostForm("password"),
		ImageName:       name,
		Image:           data,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) emailExists(c *gin.Context) {
	exists, err := h.Visitors.EmailExists(c.Request.Context(), c.Query("email"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (h *Handler) roster(c *gin.Context) {
	var inst int64
	if raw := c.Query("institution_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			badRequest(c, "institution_id must be a positive integer")
			return
		}
		inst = id
	}
	r, err := h.Visitors.Roster(c.Request.Context(), inst)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) visitorDetail(c *gin.Context) {
	d, err := h.Visitors.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	records := make([]recordView, 0, len(d.Records))
	for _, rec := range d.Records {
		records = append(records, viewRecord(rec))
	}
	c.JSON(http.StatusOK, gin.H{
		"visitor":            d.Visitor,
		"attendance":         records,
		"attendance_summary": d.Summary,
	})
}

func (h *Handler) listInstitutions(c *gin.Context) {
	list, err := h.Visitors.ListInstitutions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []visitors.Institution{}
	}
	c.JSON(http.StatusOK, gin.H{"institutions": list})
}

type institutionRequest struct {
	Key           string `json:"key" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Address       string `json:"address"`
	ContactNumber string `json:"contact_number"`
	Email         string `json:"email"`
	ExpectedCount int    `json:"expected_count"`
	LoginID       string `json:"login_id" binding:"required"`
	Password      string `json:"password" binding:"required"`
}

func (h *Handler) addInstitution(c *gin.Context) {
	var req institutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	inst, err := h.Visitors.AddInstitution(c.Request.Context(), visitors.NewInstitution{
		Key:           req.Key,
		Name:          req.Name,
		Address:       req.Address,
		ContactNumber: req.ContactNumber,
		Email:         req.Email,
		ExpectedCount: req.ExpectedCount,
		LoginID:       req.LoginID,
		Password:      req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

func (h *Handler) issueLoginKey(c *gin.Context) {
	key, err := h.Visitors.IssueLoginKey(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

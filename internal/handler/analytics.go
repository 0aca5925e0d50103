package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gatepass/internal/analytics"
	"gatepass/internal/attendance"
)

// analytics answers GET /v1/analytics?start_date=&end_date=&institution_id=
// &visitor_id=&group_by_institution=. Dates are YYYY-MM-DD.
func (h *Handler) analytics(c *gin.Context) {
	var q analytics.Query
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &q.Start}, {"end_date", &q.End}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(attendance.DateLayout, raw, h.Location)
		if err != nil {
			badRequest(c, p.name+" must be YYYY-MM-DD")
			return
		}
		*p.dst = &t
	}
	if raw := c.Query("institution_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "institution_id must be a positive integer")
			return
		}
		q.InstitutionID = id
	}
	q.VisitorID = c.Query("visitor_id")
	q.GroupByInstitution, _ = strconv.ParseBool(c.Query("group_by_institution"))

	report, err := h.Analytics.Compute(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

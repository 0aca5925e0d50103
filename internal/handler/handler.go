// Package handler exposes the gatepass services over HTTP with gin.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatepass/internal/activity"
	"gatepass/internal/analytics"
	"gatepass/internal/attendance"
	"gatepass/internal/auth"
	"gatepass/internal/faceclient"
	"gatepass/internal/logging"
	"gatepass/internal/meals"
	"gatepass/internal/media"
	"gatepass/internal/operators"
	"gatepass/internal/visitors"
)

type Ledger interface {
	RecordArrival(ctx context.Context, req attendance.ArrivalRequest) (attendance.EntryResult, error)
	RecordDeparture(ctx context.Context, visitorID, operatorID string) (attendance.EntryResult, error)
	AttachFaceImage(ctx context.Context, visitorID, imageRef string) error
	ConfirmFace(ctx context.Context, visitorID string) (attendance.EntryResult, error)
	Today(ctx context.Context, visitorID string) (*attendance.DailyRecord, error)
}

type Visitors interface {
	Register(ctx context.Context, in visitors.RegisterInput) (visitors.Visitor, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Detail(ctx context.Context, id string) (visitors.Detail, error)
	Roster(ctx context.Context, institutionID int64) (visitors.Roster, error)
	ListInstitutions(ctx context.Context) ([]visitors.Institution, error)
	IssueLoginKey(ctx context.Context) (string, error)
	AddInstitution(ctx context.Context, in visitors.NewInstitution) (visitors.Institution, error)
}

type Operators interface {
	Create(ctx context.Context, in operators.CreateInput) (operators.Operator, error)
	Login(ctx context.Context, username, password string) (auth.TokenPair, operators.Operator, error)
	Logout(ctx context.Context, claims auth.Claims) error
}

type Analytics interface {
	Compute(ctx context.Context, q analytics.Query) (analytics.Report, error)
}

type Meals interface {
	Serve(ctx context.Context, visitorID string, mealType meals.MealType) (meals.Record, error)
	Today(ctx context.Context, visitorID string) (meals.Record, error)
}

type FaceVerifier interface {
	Verify(ctx context.Context, visitorID, imageURL string) (*faceclient.VerifyResult, error)
}

// ActivityFeed reads back recorded events, newest first.
type ActivityFeed interface {
	Recent(ctx context.Context, n int64) ([]activity.Event, error)
}

// Deps are the collaborators behind the routes. Face and Feed may be nil.
type Deps struct {
	Ledger    Ledger
	Visitors  Visitors
	Operators Operators
	Analytics Analytics
	Meals     Meals
	Media     media.Storage
	Face      FaceVerifier
	Activity  activity.Sink
	Feed      ActivityFeed
	Signer    *auth.Signer
	Revoked   auth.Revocations
	Location  *time.Location
	Log       logging.Logger

	// Checks are reported by /healthz; any failure answers 503.
	Checks map[string]func(ctx context.Context) error
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Activity == nil {
		d.Activity = activity.NewLog(d.Log)
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Handler{Deps: d}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	v1 := r.Group("/v1")
	v1.POST("/operators/login", h.login)
	v1.POST("/visitors", h.registerVisitor)
	v1.GET("/visitors/email-exists", h.emailExists)
	v1.POST("/institutions", h.addInstitution)
	v1.GET("/institutions", h.listInstitutions)

	op := v1.Group("", auth.OperatorAuth(h.Signer, h.Revoked, h.Log))
	op.POST("/operators/logout", h.logout)
	op.POST("/attendance/arrivals", h.arrival)
	op.POST("/attendance/departures", h.departure)
	op.POST("/attendance/face", h.faceCapture)
	op.GET("/attendance/today/:visitor_id", h.today)
	op.GET("/visitors", h.roster)
	op.GET("/visitors/:id", h.visitorDetail)
	op.GET("/analytics", h.analytics)
	op.POST("/meals", h.serveMeal)
	op.GET("/meals/:visitor_id", h.todayMeals)

	admin := op.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/operators", h.createOperator)
	admin.POST("/institutions/keys", h.issueLoginKey)
	if h.Feed != nil {
		admin.GET("/activity", h.recentActivity)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Checks {
		ok := check(c.Request.Context()) == nil
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (h *Handler) recentActivity(c *gin.Context) {
	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > 500 {
			badRequest(c, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	events, err := h.Feed.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func operatorID(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Subject
}

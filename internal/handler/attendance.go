package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gatepass/internal/activity"
	"gatepass/internal/attendance"
	"gatepass/internal/media"
)

const maxImageBytes = 10 << 20

type recordView struct {
	RecordID     string                    `json:"record_id"`
	VisitorID    string                    `json:"visitor_id"`
	EntryDate    string                    `json:"entry_date"`
	TimeLogs     []attendance.TimeLogEntry `json:"time_logs"`
	FaceImageRef string                    `json:"face_image,omitempty"`
	OperatorID   string                    `json:"operator_id,omitempty"`
	IsActive     bool                      `json:"is_active"`
}

func viewRecord(rec attendance.DailyRecord) recordView {
	logs := rec.Logs
	if logs == nil {
		logs = []attendance.TimeLogEntry{}
	}
	return recordView{
		RecordID:     rec.ID,
		VisitorID:    rec.VisitorID,
		EntryDate:    rec.Date(),
		TimeLogs:     logs,
		FaceImageRef: rec.FaceImageRef,
		OperatorID:   rec.OperatorID,
		IsActive:     rec.Active() != nil,
	}
}

type arrivalRequest struct {
	VisitorID    string `json:"visitor_id" binding:"required"`
	Bypass       bool   `json:"bypass"`
	BypassReason string `json:"bypass_reason"`
}

func (h *Handler) arrival(c *gin.Context) {
	var req arrivalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	op := operatorID(c)
	res, err := h.Ledger.RecordArrival(c.Request.Context(), attendance.ArrivalRequest{
		VisitorID:    req.VisitorID,
		OperatorID:   op,
		Bypass:       req.Bypass,
		BypassReason: req.BypassReason,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Activity.Record(c.Request.Context(), activity.Event{
		Kind:       activity.KindQRScan,
		VisitorID:  req.VisitorID,
		OperatorID: op,
		Details:    map[string]any{"entry_type": res.Entry.EntryType, "entry_index": res.Index},
	})
	status := http.StatusOK
	if res.RecordCreated {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

type departureRequest struct {
	VisitorID string `json:"visitor_id" binding:"required"`
}

func (h *Handler) departure(c *gin.Context) {
	var req departureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	op := operatorID(c)
	res, err := h.Ledger.RecordDeparture(c.Request.Context(), req.VisitorID, op)
	var warning string
	if errors.Is(err, attendance.ErrNegativeDuration) {
		warning = err.Error()
	} else if err != nil {
		h.fail(c, err)
		return
	}
	h.Activity.Record(c.Request.Context(), activity.Event{
		Kind:       activity.KindDeparture,
		VisitorID:  req.VisitorID,
		OperatorID: op,
		Details:    map[string]any{"duration": res.Entry.Duration},
	})
	if warning != "" {
		c.JSON(http.StatusOK, gin.H{"result": res, "integrity_warning": warning})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// faceCapture stores the gate camera image, attaches it to today's record and,
// when a face service is configured, verifies it against the enrolled face.
func (h *Handler) faceCapture(c *gin.Context) {
	visitorID := c.PostForm("visitor_id")
	if visitorID == "" {
		badRequest(c, "visitor_id is required")
		return
	}
	data, name, err := readImage(c, "image")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ext, contentType, err := media.ValidateImageName(name)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Ledger.Today(ctx, visitorID); err != nil {
		h.fail(c, err)
		return
	}
	obj, err := h.Media.Put(ctx, media.NewKey("faces", ext), data, contentType)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Ledger.AttachFaceImage(ctx, visitorID, obj.Key); err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{"image": obj, "face_verified": false}
	if h.Face != nil && obj.URL != "" {
		res, err := h.Face.Verify(ctx, visitorID, obj.URL)
		switch {
		case err != nil:
			h.Log.Warn(ctx, "face verification unavailable", "visitor_id", visitorID, "err", err)
			body["verification_error"] = "face service unavailable"
		case res.Verified:
			body["similarity"] = res.Similarity
			entry, err := h.Ledger.ConfirmFace(ctx, visitorID)
			if errors.Is(err, attendance.ErrNoActiveEntry) {
				// the visit already ended; the image stays on the day's record
				body["verification_error"] = "no open visit to confirm"
				break
			}
			if err != nil {
				h.fail(c, err)
				return
			}
			body["face_verified"] = true
			body["result"] = entry
		default:
			body["similarity"] = res.Similarity
		}
	}
	h.Activity.Record(ctx, activity.Event{
		Kind:       activity.KindFaceCapture,
		VisitorID:  visitorID,
		OperatorID: operatorID(c),
		Details:    map[string]any{"image": obj.Key, "face_verified": body["face_verified"]},
	})
	c.JSON(http.StatusOK, body)
}

func (h *Handler) today(c *gin.Context) {
	rec, err := h.Ledger.Today(c.Request.Context(), c.Param("visitor_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewRecord(*rec))
}

func readImage(c *gin.Context, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", errors.New(field + " file is required")
	}
	if fh.Size > maxImageBytes {
		return nil, "", errors.New("image is larger than 10MB")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

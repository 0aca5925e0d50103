// Package worker handles background jobs published by the API.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path"

	"gatepass/internal/faceclient"
	"gatepass/internal/logging"
	"gatepass/internal/media"
	"gatepass/internal/metrics"
	"gatepass/internal/notify"
	"gatepass/internal/queue"
	"gatepass/internal/visitors"
)

// ErrUnknownJob is returned for message types this worker does not handle.
var ErrUnknownJob = errors.New("unknown job type")

type VisitorStore interface {
	Get(ctx context.Context, id string) (visitors.Visitor, error)
	SetMediaRefs(ctx context.Context, id, qrRef, cardRef string) error
}

type FaceEnroller interface {
	Enroll(ctx context.Context, visitorID, imageURL, name string) (*faceclient.EnrollResult, error)
}

type Processor struct {
	visitors VisitorStore
	media    media.Storage
	mail     notify.Sender
	face     FaceEnroller
	log      logging.Logger
}

// New creates a processor. face may be nil to skip gallery enrollment.
func New(vs VisitorStore, blobs media.Storage, mail notify.Sender, face FaceEnroller, log logging.Logger) *Processor {
	if log == nil {
		log = logging.Discard()
	}
	return &Processor{visitors: vs, media: blobs, mail: mail, face: face, log: log}
}

// Run handles messages until the channel closes. Failures are logged and the
// message is dropped.
func (p *Processor) Run(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		outcome := "ok"
		if err := p.Handle(ctx, msg); err != nil {
			outcome = "error"
			p.log.Error(ctx, "job failed", "job", msg.Type, "err", err)
		}
		metrics.JobsProcessed.WithLabelValues(msg.Type, outcome).Inc()
	}
}

func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeVisitorRegistered:
		var job visitors.Registered
		if err := msg.Decode(&job); err != nil {
			return err
		}
		return p.registered(ctx, job)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.Type)
	}
}

// registered renders the QR code and visitor card, stores both, and mails
// them to the visitor.
func (p *Processor) registered(ctx context.Context, job visitors.Registered) error {
	log := p.log.With("visitor_id", job.VisitorID, "job", queue.TypeVisitorRegistered)

	v, err := p.visitors.Get(ctx, job.VisitorID)
	if err != nil {
		return fmt.Errorf("load visitor: %w", err)
	}

	qr, err := media.RenderQR(v.QRPayload, 0)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}

	var photo []byte
	if v.ProfileImageRef != "" {
		photo, err = p.media.Get(ctx, v.ProfileImageRef)
		if err != nil {
			log.Warn(ctx, "profile image unavailable, using placeholder", "err", err)
		}
	}
	card, err := media.ComposeCard(media.CardInput{
		Name:        v.Name,
		VisitorID:   v.ID,
		Email:       v.Email,
		Institution: v.InstitutionName,
		Photo:       photo,
		QR:          qr,
	})
	if err != nil {
		return fmt.Errorf("compose card: %w", err)
	}

	qrObj, err := p.media.Put(ctx, path.Join("qr_codes", v.ID+".png"), qr, "image/png")
	if err != nil {
		return fmt.Errorf("store qr: %w", err)
	}
	cardObj, err := p.media.Put(ctx, path.Join("cards", v.ID+".png"), card, "image/png")
	if err != nil {
		return fmt.Errorf("store card: %w", err)
	}
	if err := p.visitors.SetMediaRefs(ctx, v.ID, qrObj.Key, cardObj.Key); err != nil {
		return fmt.Errorf("save media refs: %w", err)
	}

	if p.face != nil && job.ProfileURL != "" {
		if _, err := p.face.Enroll(ctx, v.ID, job.ProfileURL, v.Name); err != nil {
			log.Warn(ctx, "face enrollment failed", "err", err)
		}
	}

	mail, err := notify.WelcomeMail(notify.Welcome{
		Name:        v.Name,
		Email:       v.Email,
		VisitorID:   v.ID,
		Institution: v.InstitutionName,
		QR:          qr,
		Card:        card,
	})
	if err != nil {
		return err
	}
	if err := p.mail.Send(ctx, mail); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	log.Info(ctx, "visitor card issued", "card_ref", cardObj.Key)
	return nil
}

package visitors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gatepass/internal/activity"
	"gatepass/internal/attendance"
	"gatepass/internal/logging"
	"gatepass/internal/media"
	"gatepass/internal/queue"
)

// Store is the persistence the service needs. Repository implements it.
type Store interface {
	Get(ctx context.Context, id string) (Visitor, error)
	List(ctx context.Context, institutionID int64) ([]Visitor, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, v *Visitor) error
	SetMediaRefs(ctx context.Context, id, qrRef, cardRef string) error
	Groups(ctx context.Context) (map[string]int64, error)
	InstitutionByName(ctx context.Context, name string) (Institution, error)
	LoginHash(ctx context.Context, institutionID int64, loginID string) (string, error)
	ListInstitutions(ctx context.Context) ([]Institution, error)
	CreateLoginKey(ctx context.Context, key string) error
	AddInstitution(ctx context.Context, in NewInstitution) (Institution, error)
}

// Ledger is the read side of the attendance service.
type Ledger interface {
	History(ctx context.Context, visitorID string) ([]attendance.DailyRecord, error)
	RecordsOn(ctx context.Context, day time.Time) ([]attendance.DailyRecord, error)
	Now() time.Time
}

type Service struct {
	store    Store
	media    media.Storage
	jobs     queue.Queue
	activity activity.Sink
	ledger   Ledger
	log      logging.Logger
}

type Option func(*Service)

func WithLogger(l logging.Logger) Option { return func(s *Service) { s.log = l } }
func WithActivity(a activity.Sink) Option { return func(s *Service) { s.activity = a } }

func NewService(store Store, blobs media.Storage, jobs queue.Queue, opts ...Option) *Service {
	s := &Service{store: store, media: blobs, jobs: jobs, log: logging.Discard()}
	for _, o := range opts {
		o(s)
	}
	if s.activity == nil {
		s.activity = activity.NewLog(s.log)
	}
	return s
}

// UseLedger connects the attendance read side used by Detail and Roster. The
// ledger itself looks visitors up through this service, so it is attached
// after construction.
func (s *Service) UseLedger(l Ledger) { s.ledger = l }

// Register creates a visitor after checking the institution's shared login.
// QR and card rendering happen in the worker.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Visitor, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" || in.InstitutionName == "" || len(in.Image) == 0 {
		return Visitor{}, fmt.Errorf("%w: name, institution and profile image are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return Visitor{}, fmt.Errorf("%w: bad email address", ErrInvalidInput)
	}
	ext, contentType, err := media.ValidateImageName(in.ImageName)
	if err != nil {
		return Visitor{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	inst, err := s.store.InstitutionByName(ctx, in.InstitutionName)
	if err != nil {
		return Visitor{}, err
	}
	hash, err := s.store.LoginHash(ctx, inst.ID, in.LoginID)
	if err != nil {
		return Visitor{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
		return Visitor{}, ErrInvalidCredentials
	}

	taken, err := s.store.EmailExists(ctx, in.Email)
	if err != nil {
		return Visitor{}, err
	}
	if taken {
		return Visitor{}, ErrEmailTaken
	}

	obj, err := s.media.Put(ctx, media.NewKey("profiles", ext), in.Image, contentType)
	if err != nil {
		return Visitor{}, fmt.Errorf("store profile image: %w", err)
	}

	v := Visitor{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Email:           in.Email,
		InstitutionID:   inst.ID,
		InstitutionName: inst.Name,
		ProfileImageRef: obj.Key,
	}
	payload, err := json.Marshal(QRPayload{VisitorID: v.ID, Name: v.Name, Email: v.Email, Institution: inst.Name})
	if err != nil {
		return Visitor{}, err
	}
	v.QRPayload = string(payload)

	if err := s.store.Insert(ctx, &v); err != nil {
		if derr := s.media.Delete(context.WithoutCancel(ctx), obj.Key); derr != nil {
			s.log.Warn(ctx, "orphaned profile image", "key", obj.Key, "err", derr)
		}
		return Visitor{}, err
	}

	msg, err := queue.NewMessage(queue.TypeVisitorRegistered, Registered{VisitorID: v.ID, ProfileURL: obj.URL})
	if err == nil {
		err = s.jobs.Publish(ctx, msg)
	}
	if err != nil {
		// The visitor exists; the card can be regenerated later.
		s.log.Error(ctx, "publish registration job failed", "visitor_id", v.ID, "err", err)
	}

	s.activity.Record(ctx, activity.Event{
		Kind:      activity.KindVisitorCreated,
		VisitorID: v.ID,
		Details:   map[string]any{"institution": inst.Name},
	})
	s.log.Info(ctx, "visitor registered", "visitor_id", v.ID, "institution_id", inst.ID)
	return v, nil
}

func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.store.EmailExists(ctx, email)
}

func (s *Service) Get(ctx context.Context, id string) (Visitor, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Visitor{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Exists reports whether id is a registered visitor. Malformed ids are
// simply unknown.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Groups maps visitor ids to institution ids for analytics.
func (s *Service) Groups(ctx context.Context) (map[string]int64, error) {
	return s.store.Groups(ctx)
}

func (s *Service) SetMediaRefs(ctx context.Context, id, qrRef, cardRef string) error {
	return s.store.SetMediaRefs(ctx, id, qrRef, cardRef)
}

// Detail returns the visitor with every daily record and totals.
func (s *Service) Detail(ctx context.Context, id string) (Detail, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if s.ledger == nil {
		return Detail{Visitor: v}, nil
	}
	recs, err := s.ledger.History(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Visitor: v, Records: recs}
	d.Summary.TotalDays = len(recs)
	for _, rec := range recs {
		for _, e := range rec.Logs {
			d.Summary.TotalEntries++
			if e.EntryType == attendance.EntryBypass {
				d.Summary.BypassEntries++
			} else {
				d.Summary.NormalEntries++
			}
		}
	}
	return d, nil
}

// Roster lists visitors with their current visit, active ones first.
// institutionID 0 lists every institution.
func (s *Service) Roster(ctx context.Context, institutionID int64) (Roster, error) {
	list, err := s.store.List(ctx, institutionID)
	if err != nil {
		return Roster{}, err
	}
	roster := Roster{Visitors: make([]RosterEntry, 0, len(list))}
	if s.ledger == nil {
		for _, v := range list {
			roster.Visitors = append(roster.Visitors, RosterEntry{Visitor: v})
		}
		return roster, nil
	}

	now := s.ledger.Now()
	recs, err := s.ledger.RecordsOn(ctx, now)
	if err != nil {
		return Roster{}, err
	}
	today := make(map[string]*attendance.DailyRecord, len(recs))
	for i := range recs {
		today[recs[i].VisitorID] = &recs[i]
	}

	for _, v := range list {
		entry := RosterEntry{Visitor: v}
		if rec, ok := today[v.ID]; ok {
			roster.Today.TotalEntries += len(rec.Logs)
			if last := rec.Last(); last != nil {
				entry.EntryType = last.EntryType
				entry.QRVerified = last.QRVerified
			}
			if active := rec.Active(); active != nil {
				roster.Today.ActiveEntries++
				entry.IsActive = true
				entry.Arrival = active.Arrival
				entry.ElapsedMinutes = int(now.Sub(*active.Arrival).Minutes())
			}
		}
		roster.Visitors = append(roster.Visitors, entry)
	}
	sort.SliceStable(roster.Visitors, func(i, j int) bool {
		return roster.Visitors[i].IsActive && !roster.Visitors[j].IsActive
	})
	return roster, nil
}

func (s *Service) ListInstitutions(ctx context.Context) ([]Institution, error) {
	return s.store.ListInstitutions(ctx)
}

// IssueLoginKey creates a one-time key an institution redeems at signup.
func (s *Service) IssueLoginKey(ctx context.Context) (string, error) {
	key := uuid.NewString()
	if err := s.store.CreateLoginKey(ctx, key); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) AddInstitution(ctx context.Context, in NewInstitution) (Institution, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.LoginID = strings.TrimSpace(in.LoginID)
	if in.Key == "" || in.Name == "" || in.LoginID == "" || in.Password == "" {
		return Institution{}, fmt.Errorf("%w: key, name, login id and password are required", ErrInvalidInput)
	}
	if in.ExpectedCount < 0 {
		return Institution{}, fmt.Errorf("%w: expected count must not be negative", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Institution{}, err
	}
	in.passwordHash = string(hash)

	inst, err := s.store.AddInstitution(ctx, in)
	if err != nil {
		return Institution{}, err
	}
	s.log.Info(ctx, "institution added", "institution_id", inst.ID, "name", inst.Name)
	return inst, nil
}

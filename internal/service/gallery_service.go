package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/metrics"
	"github.com/dom/dreamhome-studio/internal/repository"
	"github.com/google/uuid"
)

var ErrInvalidDesign = errors.New("invalid design")

const galleryLoadTimeout = 10 * time.Second

// GalleryService owns every user's saved designs and fans changes out to
// live subscriptions.
type GalleryService struct {
	designRepo repository.DesignRepository
	metrics    metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

func NewGalleryService(designRepo repository.DesignRepository, rec metrics.Recorder, logger *slog.Logger) *GalleryService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GalleryService{
		designRepo: designRepo,
		metrics:    rec,
		logger:     logger,
		now:        time.Now,
		subs:       make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Subscription delivers full gallery snapshots, newest first, until it is
// unsubscribed or a load fails. Callbacks run on the subscription's own
// goroutine, one at a time. They must not call Unsubscribe synchronously.
type Subscription struct {
	svc      *GalleryService
	userID   uuid.UUID
	onUpdate func([]*domain.Design)
	onError  func(error)

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Subscribe registers callbacks for userID's gallery. The current snapshot is
// delivered first, then one snapshot after each change. Bursts of changes may
// be coalesced into a single snapshot of the latest state.
func (s *GalleryService) Subscribe(userID uuid.UUID, onUpdate func([]*domain.Design), onError func(error)) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		svc:      s,
		userID:   userID,
		onUpdate: onUpdate,
		onError:  onError,
		notify:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.mu.Lock()
	set, ok := s.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		s.subs[userID] = set
	}
	set[sub] = struct{}{}
	s.mu.Unlock()

	s.metrics.SubscriberAdded()
	sub.Resync()
	go sub.run()

	return sub
}

// Unsubscribe stops delivery. No callback runs after it returns. Calling it
// more than once is a no-op.
func (sub *Subscription) Unsubscribe() {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
	sub.detach()
}

// Resync schedules a fresh snapshot.
func (sub *Subscription) Resync() {
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *Subscription) detach() {
	sub.once.Do(func() {
		sub.cancel()
		sub.svc.remove(sub)
	})
}

func (sub *Subscription) run() {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.notify:
		}

		ctx, cancel := context.WithTimeout(sub.ctx, galleryLoadTimeout)
		designs, err := sub.svc.designRepo.ListByUser(ctx, sub.userID)
		cancel()

		if err != nil {
			if sub.ctx.Err() != nil {
				return
			}
			sub.fail(&domain.StoreError{Op: "subscribe", Err: err})
			return
		}
		sub.deliver(designs)
	}
}

func (sub *Subscription) deliver(designs []*domain.Design) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.onUpdate(designs)
}

func (sub *Subscription) fail(err error) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	sub.svc.logger.Warn("gallery subscription failed",
		slog.String("user_id", sub.userID.String()),
		slog.String("error", err.Error()),
	)
	if sub.onError != nil {
		sub.onError(err)
	}
	sub.mu.Unlock()
	sub.detach()
}

func (s *GalleryService) remove(sub *Subscription) {
	s.mu.Lock()
	if set, ok := s.subs[sub.userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, sub.userID)
		}
	}
	s.mu.Unlock()
	s.metrics.SubscriberRemoved()
}

func (s *GalleryService) publish(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[userID] {
		sub.Resync()
	}
}

// SubscriberCount reports live subscriptions for userID.
func (s *GalleryService) SubscriberCount(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[userID])
}

// Append persists a design into userID's gallery. The store assigns the id
// and creation time; whatever the caller set is ignored.
func (s *GalleryService) Append(ctx context.Context, userID uuid.UUID, design *domain.Design) (*domain.Design, error) {
	if design == nil {
		return nil, fmt.Errorf("%w: missing design", ErrInvalidDesign)
	}
	if !strings.HasPrefix(design.Image, "data:image/") {
		return nil, fmt.Errorf("%w: image must be a data URI", ErrInvalidDesign)
	}
	if strings.TrimSpace(design.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidDesign)
	}

	stored := &domain.Design{
		ID:        uuid.New(),
		UserID:    userID,
		Image:     design.Image,
		Prompt:    design.Prompt,
		CreatedAt: s.now().UTC(),
	}
	if err := s.designRepo.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("append design: %w", err)
	}

	s.metrics.RecordDesignAppended()
	s.logger.Info("design appended",
		slog.String("user_id", userID.String()),
		slog.String("design_id", stored.ID.String()),
	)
	s.publish(userID)
	return stored, nil
}

// Remove deletes a design from userID's gallery. Removing an id that is not
// there is not an error.
func (s *GalleryService) Remove(ctx context.Context, userID, designID uuid.UUID) error {
	removed, err := s.designRepo.Delete(ctx, userID, designID)
	if err != nil {
		return fmt.Errorf("remove design: %w", err)
	}
	if removed {
		s.metrics.RecordDesignRemoved()
		s.publish(userID)
	}
	return nil
}

func (s *GalleryService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Design, error) {
	return s.designRepo.ListByUser(ctx, userID)
}

package grouporder

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"grouporder-services/internal/docstore"
	"grouporder-services/internal/metrics"

	"go.uber.org/zap"
)

// IdentityProvider yields the current user, or nil when anonymous. It is read on
// every operation and every render, never cached.
type IdentityProvider interface {
	CurrentUserID() *string
}

// FailurePolicy decides what happens to the local cache when a store write fails.
type FailurePolicy int

const (
	// KeepOptimistic leaves the optimistic value in place until the next snapshot overwrites it.
	KeepOptimistic FailurePolicy = iota
	// RevertOnFailure rebuilds the cache from the last snapshot plus the writes still pending.
	RevertOnFailure
)

const (
	defaultMaxParticipants = 20
	defaultWriteTimeout    = 10 * time.Second
)

type Options struct {
	Catalog         Catalog
	Identity        IdentityProvider
	Logger          *zap.Logger
	Metrics         *metrics.Registry
	Submitter       OrderSubmitter
	FailurePolicy   FailurePolicy
	MaxParticipants int
	WriteRetries    int
	RetryDelay      time.Duration
	WriteTimeout    time.Duration
	// OnChange receives a fresh View after every local or remote change.
	OnChange func(View)
	Now      func() time.Time
}

type pendingWrite struct {
	patch     Patch
	onSuccess func(GroupOrder)
}

// Session is one client's view of a shared group order. Mutations apply to the local
// cache immediately and are written to the store in order by a background writer.
// The cache is always the last confirmed snapshot with the pending writes replayed
// on top of it.
type Session struct {
	store  docstore.Store
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	id        string
	doc       GroupOrder
	confirmed GroupOrder
	draft     []Participant
	state     State
	subView   SubView
	numPeople int
	revision  uint64
	published *View
	placed    bool
	pending   []pendingWrite
	idle      chan struct{}
	err       error
	closed    bool
	stopping  bool

	done        chan struct{}
	writerDone  chan struct{}
	unsubscribe func()
}

func NewSession(store docstore.Store, opts Options) *Session {
	if opts.Catalog == nil {
		opts.Catalog = NewStaticCatalog(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = defaultMaxParticipants
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	idle := make(chan struct{})
	close(idle)
	s := &Session{
		store:      store,
		opts:       opts,
		logger:     opts.Logger,
		subView:    SubView{Kind: SubViewShared},
		idle:       idle,
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.writeLoop()
	return s
}

// Subscribe attaches the session to a stored group order. A missing document or a
// failed subscription both end the session with ErrSessionVanished.
func (s *Session) Subscribe(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.id != "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: already subscribed to %s", ErrInvalidState, s.id)
	}
	s.id = sessionID
	s.doc.ID = sessionID
	s.mu.Unlock()

	unsubscribe, err := s.store.Subscribe(ctx, Collection, sessionID, s.applySnapshot, s.subscriptionFailed)
	if err != nil {
		s.subscriptionFailed(err)
		return fmt.Errorf("%w: %v", ErrSessionVanished, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	s.opts.Metrics.SessionOpened()
	return nil
}

func (s *Session) subscriptionFailed(err error) {
	s.logger.Error("group order subscription failed", zap.String("sessionId", s.sessionID()), zap.Error(err))
	s.opts.Metrics.Vanished("subscription_error")
	s.vanish(fmt.Errorf("%w: %v", ErrSessionVanished, err))
}

func (s *Session) applySnapshot(snap docstore.Snapshot) {
	if !snap.Exists {
		s.logger.Warn("group order document missing", zap.String("sessionId", snap.Key.ID))
		s.opts.Metrics.Vanished("missing")
		s.vanish(ErrSessionVanished)
		return
	}

	var remote GroupOrder
	if err := snap.Decode(&remote); err != nil {
		s.subscriptionFailed(err)
		return
	}
	remote.ID = snap.Key.ID
	computed := ComputeAllFinished(remote.Participants)
	if remote.AllFinished != computed {
		s.logger.Debug("group order allFinished out of date",
			zap.String("sessionId", remote.ID),
			zap.Bool("stored", remote.AllFinished),
			zap.Bool("computed", computed),
		)
	}
	remote.AllFinished = computed

	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		return
	}
	s.confirmed = remote.Clone()
	if remote.OrderPlaced {
		s.placed = true
	}
	// Writes not yet acknowledged still land after this snapshot, so replay them.
	for _, w := range s.pending {
		w.patch.Apply(&remote)
	}
	s.doc = remote
	s.reconcileLocked()
	v, changed := s.publishLocked()
	s.mu.Unlock()

	s.opts.Metrics.Snapshot()
	if changed {
		s.emit(v)
	}
}

// reconcileLocked re-derives phase, people count and sub-view from the cache.
func (s *Session) reconcileLocked() {
	switch {
	case s.placed || s.doc.OrderPlaced:
		s.state = StatePlaced
	case s.doc.Status == StatusReviewing:
		s.state = StateReviewing
	case len(s.doc.Participants) > 0:
		s.state = StateOrdering
	case s.state >= StateOrdering && len(s.draft) > 0:
		// A snapshot older than our start write; the draft is still here.
		s.state = StateCollectingNames
	case s.state >= StateOrdering:
		s.state = StateSelectingPeopleCount
	}

	if s.state >= StateOrdering {
		s.numPeople = len(s.doc.Participants)
	} else {
		s.numPeople = len(s.draft)
	}
	if s.subView.Kind == SubViewParticipant && s.subView.PersonIndex >= len(s.doc.Participants) {
		s.subView = SubView{Kind: SubViewShared}
	}
}

func (s *Session) vanish(err error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	close(s.done)
	v, _ := s.publishLocked()
	s.mu.Unlock()
	s.emit(v)
}

// Done is closed once the session has vanished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session vanished, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) currentUser() *string {
	if s.opts.Identity == nil {
		return nil
	}
	id := s.opts.Identity.CurrentUserID()
	if id == nil || *id == "" {
		return nil
	}
	out := *id
	return &out
}

func (s *Session) emit(v View) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(v)
	}
}

func (s *Session) reject(op string, err error) error {
	s.opts.Metrics.Rejected(op, rejectReason(err))
	s.logger.Debug("group order mutation rejected", zap.String("op", op), zap.String("sessionId", s.sessionID()), zap.Error(err))
	return err
}

func (s *Session) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}
	return nil
}

// mutate runs fn against the cache, applies the resulting patch optimistically and
// queues it for the store.
func (s *Session) mutate(op string, fn func(o GroupOrder, requester *string) (Patch, error)) error {
	requester := s.currentUser()

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	patch, err := fn(s.doc, requester)
	if err != nil {
		s.mu.Unlock()
		return s.reject(op, err)
	}
	patch.Apply(&s.doc)
	s.enqueueLocked(pendingWrite{patch: patch})
	s.reconcileLocked()
	v, changed := s.publishLocked()
	s.mu.Unlock()

	if changed {
		s.emit(v)
	}
	return nil
}

// local runs fn against local-only state and emits a view on success.
func (s *Session) local(op string, fn func(requester *string) error) error {
	requester := s.currentUser()

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := fn(requester); err != nil {
		s.mu.Unlock()
		return s.reject(op, err)
	}
	v, changed := s.publishLocked()
	s.mu.Unlock()

	if changed {
		s.emit(v)
	}
	return nil
}

// requireOrdering gates edits. Carts are frozen from review onwards.
func (s *Session) requireOrdering() error {
	switch s.state {
	case StateOrdering:
		return nil
	case StatePlaced:
		return ErrOrderPlaced
	default:
		return ErrInvalidState
	}
}

func (s *Session) requireStarted() error {
	if s.state < StateOrdering {
		return ErrInvalidState
	}
	return nil
}

// SetParticipantCount grows or truncates the participant list from the tail. Before
// ordering starts it only touches the local draft; afterwards it is an owner-only
// pushed write.
func (s *Session) SetParticipantCount(n int) error {
	if n < 1 || n > s.opts.MaxParticipants {
		return s.reject("set_count", ErrInvalidCount)
	}

	s.mu.Lock()
	pushed := s.state >= StateOrdering
	s.mu.Unlock()

	if !pushed {
		return s.local("set_count", func(requester *string) error {
			if s.state >= StateOrdering {
				return ErrInvalidState
			}
			if s.doc.OwnerID != "" && !s.doc.IsOwner(requester) {
				return ErrNotOwner
			}
			s.draft = ResizeParticipants(s.draft, n)
			s.numPeople = n
			return nil
		})
	}

	return s.mutate("set_count", func(o GroupOrder, requester *string) (Patch, error) {
		if o.OrderPlaced {
			return Patch{}, ErrOrderPlaced
		}
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		if !o.IsOwner(requester) {
			return Patch{}, ErrNotOwner
		}
		return participantsPatch(ResizeParticipants(o.Participants, n)), nil
	})
}

// ConfirmParticipantCount moves from choosing the count to naming people.
func (s *Session) ConfirmParticipantCount() error {
	return s.local("confirm_count", func(requester *string) error {
		if s.state != StateSelectingPeopleCount {
			return ErrInvalidState
		}
		if len(s.draft) == 0 {
			return ErrInvalidCount
		}
		s.state = StateCollectingNames
		return nil
	})
}

// StartOrdering publishes the drafted participants and opens ordering. Every
// participant must have a non-empty name.
func (s *Session) StartOrdering() error {
	return s.mutate("start", func(o GroupOrder, requester *string) (Patch, error) {
		if s.state != StateSelectingPeopleCount && s.state != StateCollectingNames {
			return Patch{}, ErrInvalidState
		}
		if !o.IsOwner(requester) {
			return Patch{}, ErrNotOwner
		}
		if len(s.draft) == 0 {
			return Patch{}, ErrInvalidCount
		}
		if !allNamed(s.draft) {
			return Patch{}, ErrNamesMissing
		}
		patch := participantsPatch(cloneParticipants(s.draft))
		status := StatusOrdering
		patch.Status = &status
		s.subView = SubView{Kind: SubViewShared}
		return patch, nil
	})
}

func (s *Session) SelectShared() error {
	return s.local("view_shared", func(*string) error {
		if err := s.requireStarted(); err != nil {
			return err
		}
		s.subView = SubView{Kind: SubViewShared}
		return nil
	})
}

func (s *Session) SelectParticipant(personIndex int) error {
	return s.local("view_participant", func(*string) error {
		if err := s.requireStarted(); err != nil {
			return err
		}
		if personIndex < 0 || personIndex >= len(s.doc.Participants) {
			return ErrUnknownParticipant
		}
		s.subView = SubView{Kind: SubViewParticipant, PersonIndex: personIndex}
		return nil
	})
}

// RenameParticipant edits the local draft before ordering and pushes afterwards.
func (s *Session) RenameParticipant(personIndex int, name string) error {
	s.mu.Lock()
	pushed := s.state >= StateOrdering
	s.mu.Unlock()

	if !pushed {
		return s.local("rename", func(requester *string) error {
			if s.state >= StateOrdering {
				return ErrInvalidState
			}
			next, err := RenameParticipant(GroupOrder{Participants: s.draft}, personIndex, name, requester)
			if err != nil {
				return err
			}
			s.draft = next
			return nil
		})
	}

	return s.mutate("rename", func(o GroupOrder, requester *string) (Patch, error) {
		if o.OrderPlaced {
			return Patch{}, ErrOrderPlaced
		}
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := RenameParticipant(o, personIndex, name, requester)
		if err != nil {
			return Patch{}, err
		}
		return participantsPatch(next), nil
	})
}

func (s *Session) ClaimAndAddItem(personIndex int, itemID string) error {
	return s.mutate("claim_add", func(o GroupOrder, requester *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := ClaimAndAddItem(o, s.opts.Catalog, personIndex, itemID, requester)
		if err != nil {
			return Patch{}, err
		}
		return participantsPatch(next), nil
	})
}

func (s *Session) AddItem(personIndex int, itemID string) error {
	return s.ClaimAndAddItem(personIndex, itemID)
}

func (s *Session) SetQuantity(personIndex int, itemID string, quantity int) error {
	return s.mutate("set_quantity", func(o GroupOrder, requester *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := SetQuantity(o, personIndex, itemID, quantity, requester)
		if err != nil {
			return Patch{}, err
		}
		return participantsPatch(next), nil
	})
}

func (s *Session) AdjustQuantity(personIndex int, itemID string, delta int) error {
	return s.mutate("adjust_quantity", func(o GroupOrder, requester *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := AdjustQuantity(o, personIndex, itemID, delta, requester)
		if err != nil {
			return Patch{}, err
		}
		return participantsPatch(next), nil
	})
}

func (s *Session) RemoveLine(personIndex int, itemID string) error {
	return s.mutate("remove_line", func(o GroupOrder, requester *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := RemoveLine(o, personIndex, itemID, requester)
		if err != nil {
			return Patch{}, err
		}
		return participantsPatch(next), nil
	})
}

// FinishParticipant marks a slot finished and persists allFinished in the same write.
func (s *Session) FinishParticipant(personIndex int) error {
	return s.mutate("finish", func(o GroupOrder, requester *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := FinishParticipant(o, personIndex, requester, o.IsOwner(requester))
		if err != nil {
			return Patch{}, err
		}
		return participantsPatch(next), nil
	})
}

func (s *Session) AddToShared(itemID string) error {
	return s.mutate("add_shared", func(o GroupOrder, _ *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := AddToShared(o, s.opts.Catalog, itemID)
		if err != nil {
			return Patch{}, err
		}
		return sharedItemsPatch(next), nil
	})
}

func (s *Session) SetSharedQuantity(itemID string, quantity int) error {
	return s.mutate("set_shared_quantity", func(o GroupOrder, _ *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := SetSharedQuantity(o, itemID, quantity)
		if err != nil {
			return Patch{}, err
		}
		return sharedItemsPatch(next), nil
	})
}

func (s *Session) AdjustSharedQuantity(itemID string, delta int) error {
	return s.mutate("adjust_shared_quantity", func(o GroupOrder, _ *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := AdjustSharedQuantity(o, itemID, delta)
		if err != nil {
			return Patch{}, err
		}
		return sharedItemsPatch(next), nil
	})
}

func (s *Session) RemoveSharedLine(itemID string) error {
	return s.mutate("remove_shared", func(o GroupOrder, _ *string) (Patch, error) {
		if err := s.requireOrdering(); err != nil {
			return Patch{}, err
		}
		next, err := RemoveSharedLine(o, itemID)
		if err != nil {
			return Patch{}, err
		}
		return sharedItemsPatch(next), nil
	})
}

// ToggleShowPrices flips price visibility for non-owners. It stays available after
// the order is placed.
func (s *Session) ToggleShowPrices() error {
	return s.mutate("toggle_prices", func(o GroupOrder, requester *string) (Patch, error) {
		if !o.IsOwner(requester) {
			return Patch{}, ErrNotOwner
		}
		show := !o.ShowPricesToAll
		return Patch{ShowPricesToAll: &show}, nil
	})
}

// BeginReview moves every client to the review screen once all participants finished.
func (s *Session) BeginReview() error {
	return s.mutate("review", func(o GroupOrder, requester *string) (Patch, error) {
		if !o.IsOwner(requester) {
			return Patch{}, ErrNotOwner
		}
		if s.state != StateOrdering {
			return Patch{}, ErrInvalidState
		}
		if !ComputeAllFinished(o.Participants) {
			return Patch{}, ErrNotAllFinished
		}
		return statusPatch(StatusReviewing), nil
	})
}

func (s *Session) ReturnToOrdering() error {
	return s.mutate("back_to_ordering", func(o GroupOrder, requester *string) (Patch, error) {
		if !o.IsOwner(requester) {
			return Patch{}, ErrNotOwner
		}
		if s.state != StateReviewing || o.OrderPlaced {
			return Patch{}, ErrInvalidState
		}
		return statusPatch(StatusOrdering), nil
	})
}

// PlaceOrder freezes the order. Once the store confirms the write, the finalized
// order is handed to the submitter.
func (s *Session) PlaceOrder() error {
	requester := s.currentUser()

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	var err error
	switch {
	case !s.doc.IsOwner(requester):
		err = ErrNotOwner
	case s.doc.OrderPlaced:
		err = ErrOrderPlaced
	case !ComputeAllFinished(s.doc.Participants):
		err = ErrNotAllFinished
	case s.state != StateReviewing:
		err = ErrInvalidState
	}
	if err != nil {
		s.mu.Unlock()
		return s.reject("place", err)
	}

	placed := true
	status := StatusPlaced
	patch := Patch{OrderPlaced: &placed, Status: &status}
	patch.Apply(&s.doc)
	s.enqueueLocked(pendingWrite{patch: patch, onSuccess: s.handOff})
	s.reconcileLocked()
	v, changed := s.publishLocked()
	s.mu.Unlock()

	if changed {
		s.emit(v)
	}
	return nil
}

func (s *Session) handOff(o GroupOrder) {
	if s.opts.Submitter == nil {
		return
	}
	sub := newSubmission(o, s.opts.Catalog, s.opts.Now())
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()
	if err := s.opts.Submitter.Submit(ctx, sub); err != nil {
		s.opts.Metrics.HandedOff("error")
		s.logger.Error("group order hand-off failed", zap.String("sessionId", o.ID), zap.Error(err))
		return
	}
	s.opts.Metrics.HandedOff("ok")
	s.logger.Info("group order handed off", zap.String("sessionId", o.ID), zap.Int64("total", sub.Total))
}

// ComputeTotals prices the current cache without any store I/O.
func (s *Session) ComputeTotals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ComputeTotals(s.doc, s.opts.Catalog)
}

// View renders the current state for the current identity. It does not advance the
// revision.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked()
}

// Refresh re-renders for the current identity and emits the view if it changed,
// e.g. after the viewer signs in or out.
func (s *Session) Refresh() {
	s.mu.Lock()
	v, changed := s.publishLocked()
	s.mu.Unlock()

	if changed {
		s.emit(v)
	}
}

// publishLocked advances the revision only when the rendered view differs from the
// last published one.
func (s *Session) publishLocked() (View, bool) {
	v := s.renderLocked()
	v.Revision = 0
	if s.published != nil && reflect.DeepEqual(*s.published, v) {
		v.Revision = s.revision
		return v, false
	}
	last := v
	s.published = &last
	s.revision++
	v.Revision = s.revision
	return v, true
}

func (s *Session) renderLocked() View {
	viewer := s.currentUser()
	isOwner := s.doc.IsOwner(viewer)

	participants := s.doc.Participants
	if s.state < StateOrdering {
		participants = s.draft
	}
	o := s.doc.Clone()
	o.Participants = cloneParticipants(participants)

	totals := ComputeTotals(o, s.opts.Catalog)
	visible := PricesVisible(isOwner, o)
	if !visible {
		totals = totals.Redact()
	}

	mySlot := o.SlotOf(viewer)
	needsName := mySlot >= 0 && IsPlaceholderName(o.Participants[mySlot].Name)

	return View{
		Revision:        s.revision,
		SessionID:       s.id,
		Code:            o.Code,
		State:           s.state,
		SubView:         s.subView,
		Status:          o.Status,
		NumPeople:       s.numPeople,
		Participants:    o.Participants,
		SharedItems:     o.SharedItems,
		OrderPlaced:     o.OrderPlaced,
		AllFinished:     ComputeAllFinished(s.doc.Participants),
		ShowPricesToAll: o.ShowPricesToAll,
		ViewerID:        viewer,
		IsOwner:         isOwner,
		MySlot:          mySlot,
		NeedsName:       needsName,
		PricesVisible:   visible,
		Totals:          totals,
		PendingWrites:   len(s.pending),
	}
}

// Flush waits until every queued write has been attempted.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops listening for snapshots, lets queued writes drain and stops the writer.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopping = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		s.opts.Metrics.SessionClosed()
	}
	<-s.writerDone
	return nil
}

func (s *Session) enqueueLocked(w pendingWrite) {
	if w.patch.empty() {
		return
	}
	if len(s.pending) == 0 {
		s.idle = make(chan struct{})
	}
	s.pending = append(s.pending, w)
	s.cond.Signal()
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.stopping {
			s.cond.Wait()
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		w := s.pending[0]
		id := s.id
		s.mu.Unlock()

		err := s.write(id, w.patch)

		s.mu.Lock()
		s.pending = s.pending[1:]
		var (
			v        View
			reverted bool
			placed   GroupOrder
		)
		if err != nil {
			if s.writeFailedLocked(w.patch, err) {
				v, reverted = s.publishLocked()
			}
		} else if w.onSuccess != nil {
			placed = s.doc.Clone()
		}
		if len(s.pending) == 0 {
			close(s.idle)
		}
		s.mu.Unlock()

		if errors.Is(err, docstore.ErrNotFound) {
			s.logger.Warn("group order document missing", zap.String("sessionId", id))
			s.opts.Metrics.Vanished("missing")
			s.vanish(ErrSessionVanished)
		}
		if reverted {
			s.emit(v)
		}
		if err == nil && w.onSuccess != nil {
			w.onSuccess(placed)
		}
	}
}

func (s *Session) write(id string, patch Patch) error {
	if id == "" {
		return fmt.Errorf("%w: not subscribed", ErrInvalidState)
	}
	fields := patch.Fields()

	var err error
	for attempt := 0; attempt <= s.opts.WriteRetries; attempt++ {
		if attempt > 0 && s.opts.RetryDelay > 0 {
			time.Sleep(s.opts.RetryDelay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		err = s.store.Update(ctx, Collection, id, fields)
		cancel()
		if err == nil {
			s.opts.Metrics.Write("ok")
			return nil
		}
		if errors.Is(err, docstore.ErrNotFound) {
			break
		}
	}
	s.opts.Metrics.Write("error")
	return err
}

// writeFailedLocked applies the failure policy and reports whether the cache changed.
func (s *Session) writeFailedLocked(patch Patch, err error) bool {
	fields := make([]string, 0, 6)
	for name := range patch.Fields() {
		fields = append(fields, name)
	}
	s.logger.Error("group order write failed",
		zap.String("sessionId", s.id),
		zap.String("collection", Collection),
		zap.Strings("fields", fields),
		zap.Error(err),
	)

	if s.opts.FailurePolicy != RevertOnFailure || s.closed {
		return false
	}
	doc := s.confirmed.Clone()
	for _, w := range s.pending {
		w.patch.Apply(&doc)
	}
	s.doc = doc
	s.reconcileLocked()
	return true
}

// Package lifecycle drives one screen visit of a route: loading and viewing an
// existing route, creating a new one, marking it as sent and voting it off the map.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/huiputin/routemap/internal/notify"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/pkg/core"
)

// Store is the part of the storage backend a visit needs.
type Store interface {
	FetchRoute(ctx context.Context, routeID string, onData func(core.RouteData), onLoading func(bool), onError func(error)) (storage.Unsubscribe, error)
	CreateRoute(ctx context.Context, pos core.Position, draft core.RouteDraft) (core.Marker, error)
	VoteForDelete(ctx context.Context, routeID, voterID string) (int, error)
	SetMarkerInvisible(ctx context.Context, markerID string) error
	MarkRouteAsSent(ctx context.Context, routeID string, rec core.SentRecord) error
}

// Uploader stores a local image and returns its URL.
type Uploader interface {
	UploadImage(ctx context.Context, path string) (string, error)
}

var errNoUploader = errors.New("image host not configured")

// Option configures a Visit.
type Option func(*Visit)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Visit) { v.logger = l }
}

// WithOwner binds the visit to the user that opened it.
func WithOwner(userID string) Option {
	return func(v *Visit) { v.owner = userID }
}

// WithSector records the sector the visit's position lies in.
func WithSector(s core.Sector) Option {
	return func(v *Visit) { v.sector = &s }
}

// VoteResult describes the outcome of VoteDelete.
type VoteResult struct {
	// Count is the number of delete votes after the call.
	Count int `json:"count"`
	// NeedsConfirmation is set when the next step is ConfirmDelete.
	NeedsConfirmation bool `json:"needsConfirmation"`
	// Recorded reports whether a vote was written.
	Recorded bool `json:"recorded"`
}

// View is a read-only picture of a visit.
type View struct {
	ID    string `json:"id"`
	Owner string `json:"owner,omitempty"`
	Machine
	Marker   *core.Marker    `json:"marker,omitempty"`
	Position core.Position   `json:"position"`
	Sector   *core.Sector    `json:"sector,omitempty"`
	Route    *core.RouteData `json:"route,omitempty"`
	Loading  bool            `json:"loading"`
	Error    string          `json:"error,omitempty"`
}

// Visit is one screen visit. User actions are serialised; route data pushes may
// arrive at any time and only touch the cached route.
type Visit struct {
	id       string
	store    Store
	sink     notify.Sink
	uploader Uploader
	logger   *slog.Logger
	owner    string
	sector   *core.Sector

	marker   core.Marker
	hasMark  bool
	position core.Position

	// opMu serialises user actions and is held across store calls. mu guards the
	// fields below and is never held across a store call, since pushes can be
	// delivered on the calling goroutine.
	opMu sync.Mutex
	mu   sync.Mutex

	machine        Machine
	route          core.RouteData
	hasRoute       bool
	loading        bool
	firstSendShown bool
	finalVote      bool
	err            error
	unsub          storage.Unsubscribe
}

func newVisit(store Store, sink notify.Sink, m Machine, opts []Option) *Visit {
	v := &Visit{
		id:      uuid.NewString(),
		store:   store,
		sink:    sink,
		logger:  slog.Default(),
		machine: m,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.sink == nil {
		v.sink = notify.SinkFunc(func(context.Context, core.NotificationEvent) {})
	}
	v.logger = v.logger.With("visit", v.id)
	return v
}

// OpenRoute starts a visit to the route behind marker and subscribes to its data.
// The visit is Viewing once the first route data arrived.
func OpenRoute(ctx context.Context, store Store, sink notify.Sink, marker core.Marker, opts ...Option) (*Visit, error) {
	if !marker.Visible {
		return nil, fmt.Errorf("%w: marker %s", core.ErrNotFound, marker.ID)
	}

	v := newVisit(store, sink, Loading(), opts)
	v.marker = marker
	v.hasMark = true
	v.position = marker.Position()

	unsub, err := store.FetchRoute(ctx, marker.RouteID, v.onData, v.onLoading, v.onError)
	if err != nil {
		v.Close()
		return nil, classify("fetch route", err)
	}
	v.mu.Lock()
	v.unsub = unsub
	v.mu.Unlock()

	v.logger.Debug("Opened route", "marker", marker.ID, "route", marker.RouteID)
	return v, nil
}

// NewRoute starts a visit to an empty spot where a route can be created.
// uploader may be nil when drafts never carry a local image.
func NewRoute(store Store, sink notify.Sink, pos core.Position, uploader Uploader, opts ...Option) *Visit {
	v := newVisit(store, sink, Creating(), opts)
	v.position = pos
	v.uploader = uploader
	return v
}

// ID returns the visit id.
func (v *Visit) ID() string { return v.id }

// Owner returns the user that opened the visit, empty when unbound.
func (v *Visit) Owner() string { return v.owner }

// Machine returns the current state and flags.
func (v *Visit) Machine() Machine {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.machine
}

// Route returns the last route data and whether any arrived yet.
func (v *Visit) Route() (core.RouteData, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.route, v.hasRoute
}

// Err returns the last subscription error, cleared by the next route data.
func (v *Visit) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// View returns a snapshot for rendering.
func (v *Visit) View() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	view := View{
		ID:       v.id,
		Owner:    v.owner,
		Machine:  v.machine,
		Position: v.position,
		Sector:   v.sector,
		Loading:  v.loading,
	}
	if v.hasMark {
		m := v.marker
		view.Marker = &m
	}
	if v.hasRoute {
		r := v.route
		view.Route = &r
	}
	if v.err != nil {
		view.Error = v.err.Error()
	}
	return view
}

func (v *Visit) onData(data core.RouteData) {
	v.mu.Lock()
	if v.machine.State == StateClosed {
		v.mu.Unlock()
		return
	}
	v.route = data
	v.hasRoute = true
	v.err = nil
	if next, err := v.machine.Loaded(); err == nil {
		v.machine = next
	}
	firstSend := !v.firstSendShown && len(data.SentBy) == 0
	if firstSend {
		v.firstSendShown = true
	}
	v.mu.Unlock()

	if firstSend {
		v.notify(notify.MsgFirstSend)
	}
}

func (v *Visit) onLoading(loading bool) {
	v.mu.Lock()
	v.loading = loading
	v.mu.Unlock()
}

func (v *Visit) onError(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
	v.logger.Warn("Route subscription error", "error", err)
}

func (v *Visit) notify(msg string) {
	v.sink.Notify(context.Background(), core.NotificationEvent{Message: msg, Duration: notify.LifecycleDuration})
}

// ToggleMarkingSent opens or closes the sent form.
func (v *Visit) ToggleMarkingSent() (Machine, error) {
	return v.transition((Machine).ToggleMarkingSent)
}

// DismissConfirmDelete closes the delete confirmation without voting.
func (v *Visit) DismissConfirmDelete() (Machine, error) {
	return v.transition((Machine).DismissConfirmDelete)
}

func (v *Visit) transition(fn func(Machine) (Machine, error)) (Machine, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next, err := fn(v.machine)
	if err != nil {
		return v.machine, err
	}
	v.machine = next
	return next, nil
}

// viewing returns the cached route when the visit is Viewing.
func (v *Visit) viewing(op string) (core.RouteData, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.machine.State != StateViewing {
		return core.RouteData{}, v.machine.invalid(op)
	}
	return v.route, nil
}

// Create validates the draft, uploads its image when one is attached and writes the
// marker and route. Success closes the visit.
func (v *Visit) Create(ctx context.Context, draft core.RouteDraft) (core.Marker, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	state := v.machine
	v.mu.Unlock()
	if state.State != StateCreating {
		return core.Marker{}, state.invalid("create")
	}

	draft.Name = strings.TrimSpace(draft.Name)
	draft.Grade = strings.TrimSpace(draft.Grade)
	draft.HoldColor = strings.TrimSpace(draft.HoldColor)
	switch {
	case draft.Name == "":
		return core.Marker{}, core.Validation("name")
	case draft.Grade == "":
		return core.Marker{}, core.Validation("grade")
	case draft.HoldColor == "":
		return core.Marker{}, core.Validation("holdColor")
	}

	if draft.ImagePath != "" {
		if v.uploader == nil {
			return core.Marker{}, core.Transport("upload image", errNoUploader)
		}
		url, err := v.uploader.UploadImage(ctx, draft.ImagePath)
		if err != nil {
			return core.Marker{}, core.Transport("upload image", err)
		}
		draft.ImageURL = url
		draft.ImagePath = ""
	}

	marker, err := v.store.CreateRoute(ctx, v.position, draft)
	if err != nil {
		v.logger.Error("Failed to create route", "error", err)
		return core.Marker{}, classify("create route", err)
	}

	v.logger.Info("Route created", "marker", marker.ID, "route", marker.RouteID, "name", draft.Name)
	v.Close()
	return marker, nil
}

// VoteDelete records a delete vote. The vote that would reach the quorum is not
// written; it raises the confirmation instead and ConfirmDelete casts it.
func (v *Visit) VoteDelete(ctx context.Context, voterID string) (VoteResult, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	route, err := v.viewing("vote delete")
	if err != nil {
		return VoteResult{}, err
	}
	if voterID == "" {
		return VoteResult{}, core.Validation("voterId")
	}
	if route.HasVoted(voterID) {
		return VoteResult{Count: len(route.VotedForDelete)}, fmt.Errorf("%w: %s", core.ErrAlreadyVoted, voterID)
	}

	if len(route.VotedForDelete)+1 >= core.DeleteQuorum {
		if _, err := v.transition((Machine).ShowConfirmDelete); err != nil {
			return VoteResult{}, err
		}
		return VoteResult{Count: len(route.VotedForDelete), NeedsConfirmation: true}, nil
	}

	count, err := v.store.VoteForDelete(ctx, route.ID, voterID)
	if err != nil {
		v.logger.Error("Failed to vote for delete", "route", route.ID, "error", err)
		return VoteResult{Count: len(route.VotedForDelete)}, classify("vote for delete", err)
	}

	res := VoteResult{Count: count, Recorded: true}
	if count >= core.DeleteQuorum {
		// Concurrent votes pushed the route over the quorum; only the hide step is left.
		v.mu.Lock()
		v.finalVote = true
		v.mu.Unlock()
		if _, err := v.transition((Machine).ShowConfirmDelete); err == nil {
			res.NeedsConfirmation = true
		}
	}
	return res, nil
}

// ConfirmDelete casts the final vote and hides the marker. When the vote is stored
// and hiding fails the error is a *core.PartialFailure; calling again then only
// retries the hide step. Success closes the visit.
func (v *Visit) ConfirmDelete(ctx context.Context, voterID string) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	route, err := v.viewing("confirm delete")
	if err != nil {
		return err
	}
	if voterID == "" {
		return core.Validation("voterId")
	}

	v.mu.Lock()
	voteStored := v.finalVote
	v.mu.Unlock()
	if !voteStored && route.HasVoted(voterID) {
		if len(route.VotedForDelete) < core.DeleteQuorum {
			return fmt.Errorf("%w: %s", core.ErrAlreadyVoted, voterID)
		}
		voteStored = true
	}

	if !voteStored {
		if len(route.VotedForDelete)+1 < core.DeleteQuorum {
			return fmt.Errorf("%w: %d of %d votes", core.ErrQuorumNotReached, len(route.VotedForDelete), core.DeleteQuorum)
		}
		if _, err := v.store.VoteForDelete(ctx, route.ID, voterID); err != nil {
			v.logger.Error("Failed to cast final delete vote", "route", route.ID, "error", err)
			return classify("vote for delete", err)
		}
		v.mu.Lock()
		v.finalVote = true
		v.mu.Unlock()
	}

	if err := v.store.SetMarkerInvisible(ctx, v.marker.ID); err != nil {
		v.logger.Error("Delete vote recorded but marker still visible", "marker", v.marker.ID, "error", err)
		return &core.PartialFailure{Step: "hide marker", VoteRecorded: true, Err: err}
	}

	v.logger.Info("Route deleted", "marker", v.marker.ID, "route", route.ID)
	v.notify(notify.MsgRouteDeleted)
	v.Close()
	return nil
}

// MarkAsSent records that sender climbed the route. Blank fields are rejected before
// anything else. Success closes the visit.
func (v *Visit) MarkAsSent(ctx context.Context, sender core.User, grade, tryCount string) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	route, err := v.viewing("mark as sent")
	if err != nil {
		return err
	}

	grade, tryCount = strings.TrimSpace(grade), strings.TrimSpace(tryCount)
	switch {
	case grade == "":
		return core.Validation("grade")
	case tryCount == "":
		return core.Validation("tryCount")
	case sender.ID == "":
		return core.Validation("senderId")
	}

	if route.HasSent(sender.ID) {
		v.clearMarkingSent()
		return fmt.Errorf("%w: %s", core.ErrAlreadySent, sender.ID)
	}

	rec := core.SentRecord{SenderID: sender.ID, SenderName: sender.Name, Grade: grade, Tries: tryCount}
	if err := v.store.MarkRouteAsSent(ctx, route.ID, rec); err != nil {
		if errors.Is(err, core.ErrAlreadySent) {
			v.clearMarkingSent()
		}
		v.logger.Error("Failed to mark route as sent", "route", route.ID, "error", err)
		return classify("mark as sent", err)
	}

	v.logger.Info("Route sent", "route", route.ID, "sender", sender.ID, "grade", grade)
	v.notify(notify.MsgRouteSent)
	v.Close()
	return nil
}

func (v *Visit) clearMarkingSent() {
	v.mu.Lock()
	v.machine.MarkingSent = false
	v.mu.Unlock()
}

// Close releases the route subscription. It is safe to call more than once.
func (v *Visit) Close() {
	v.mu.Lock()
	v.machine = v.machine.Close()
	unsub := v.unsub
	v.unsub = nil
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Closed reports whether the visit ended.
func (v *Visit) Closed() bool {
	return v.Machine().State == StateClosed
}

// classify keeps domain errors and wraps anything else as a transport failure.
func classify(op string, err error) error {
	for _, known := range []error{
		core.ErrTransport, core.ErrValidation, core.ErrNotFound,
		core.ErrAlreadyVoted, core.ErrAlreadySent, core.ErrInvalidState,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return core.Transport(op, err)
}

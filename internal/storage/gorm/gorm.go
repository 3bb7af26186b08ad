// Package gormstorage implements storage.Backend on top of GORM. The sqlite and
// postgres backends wrap it and only add connection handling.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/huiputin/routemap/internal/changefeed"
	"github.com/huiputin/routemap/internal/database"
	"github.com/huiputin/routemap/internal/logging"
	"github.com/huiputin/routemap/internal/model"
	"github.com/huiputin/routemap/internal/model/convert"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB *gorm.DB
	// Feed carries change notifications between writers and subscribers.
	// Defaults to an in-process feed.
	Feed       changefeed.Feed
	LogManager *logging.SlogManager
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps   Dependencies
	closed atomic.Bool
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Feed == nil {
		deps.Feed = changefeed.NewLocal()
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

func (b *Backend) log() *slog.Logger {
	return b.deps.LogManager.Logger()
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend has no database")
	}
	b.log().Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.closed.Store(false)
	return nil
}

// Close stops change delivery. The connection itself belongs to the caller.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.deps.Feed.Close()
}

func (b *Backend) checkOpen(op string) error {
	if b.closed.Load() {
		return core.Transport(op, storage.ErrClosed)
	}
	return nil
}

// classify passes domain errors through and wraps everything else as transport.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrAlreadyVoted),
		errors.Is(err, core.ErrAlreadySent):
		return err
	default:
		return core.Transport(op, err)
	}
}

func (b *Backend) publish(ctx context.Context, topic string) {
	if err := b.deps.Feed.Publish(context.WithoutCancel(ctx), topic); err != nil {
		b.log().Warn("Failed to publish change", "topic", topic, "error", err)
	}
}

// lockRoute loads a route row for update inside tx. SQLite ignores the lock and
// serialises writers on its single connection instead.
func lockRoute(tx *gorm.DB, routeID string) error {
	var route model.Route
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&route, "id = ?", routeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: route %s", core.ErrNotFound, routeID)
	}
	return err
}

// SubscribeMarkers delivers the current marker list, then a fresh list after every
// published marker change.
func (b *Backend) SubscribeMarkers(ctx context.Context, onSnapshot func([]core.Marker), onError func(error)) (storage.Unsubscribe, error) {
	if err := b.checkOpen("subscribe markers"); err != nil {
		return nil, err
	}
	readCtx := context.WithoutCancel(ctx)

	deliver := func() {
		markers, err := b.Markers(readCtx)
		if err != nil {
			onError(err)
			return
		}
		onSnapshot(markers)
	}

	cancel, err := b.deps.Feed.Subscribe(ctx, changefeed.TopicMarkers, deliver)
	if err != nil {
		return nil, core.Transport("subscribe markers", err)
	}
	deliver()
	return storage.Once(cancel), nil
}

// FetchRoute delivers the route document, then a fresh copy after every change to it.
func (b *Backend) FetchRoute(ctx context.Context, routeID string, onData func(core.RouteData), onLoading func(bool), onError func(error)) (storage.Unsubscribe, error) {
	if err := b.checkOpen("fetch route"); err != nil {
		return nil, err
	}
	readCtx := context.WithoutCancel(ctx)

	onLoading(true)
	first, err := b.Route(readCtx, routeID)
	if err != nil {
		onLoading(false)
		return nil, err
	}

	deliver := func() {
		data, err := b.Route(readCtx, routeID)
		if err != nil {
			onError(err)
			return
		}
		onData(data)
	}

	cancel, err := b.deps.Feed.Subscribe(ctx, changefeed.RouteTopic(routeID), deliver)
	if err != nil {
		onLoading(false)
		return nil, core.Transport("fetch route", err)
	}
	onData(first)
	onLoading(false)
	return storage.Once(cancel), nil
}

// CreateRoute inserts the route and its visible marker in one transaction.
func (b *Backend) CreateRoute(ctx context.Context, pos core.Position, draft core.RouteDraft) (core.Marker, error) {
	if err := b.checkOpen("create route"); err != nil {
		return core.Marker{}, err
	}

	route := convert.DraftToRoute(uuid.NewString(), draft)
	marker := model.Marker{
		ID:      uuid.NewString(),
		X:       pos.X,
		Y:       pos.Y,
		RouteID: route.ID,
		Visible: true,
	}

	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&route).Error; err != nil {
			return err
		}
		return tx.Create(&marker).Error
	})
	if err != nil {
		return core.Marker{}, classify("create route", err)
	}

	b.publish(ctx, changefeed.TopicMarkers)
	return convert.MarkerToCore(marker), nil
}

// VoteForDelete appends a delete vote and returns the new vote count. The read of
// existing votes and the insert share one transaction; the unique
// (route_id, voted_by) index rejects a concurrent duplicate.
func (b *Backend) VoteForDelete(ctx context.Context, routeID, voterID string) (int, error) {
	if err := b.checkOpen("vote for delete"); err != nil {
		return 0, err
	}

	var count int64
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRoute(tx, routeID); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&model.DeleteVote{}).
			Where("route_id = ? AND voted_by = ?", routeID, voterID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return core.ErrAlreadyVoted
		}

		if err := tx.Create(&model.DeleteVote{RouteID: routeID, VotedBy: voterID}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return core.ErrAlreadyVoted
			}
			return err
		}

		return tx.Model(&model.DeleteVote{}).Where("route_id = ?", routeID).Count(&count).Error
	})
	if err != nil {
		return 0, classify("vote for delete", err)
	}

	b.publish(ctx, changefeed.RouteTopic(routeID))
	return int(count), nil
}

// SetMarkerInvisible soft deletes a marker.
func (b *Backend) SetMarkerInvisible(ctx context.Context, markerID string) error {
	return b.setVisible(ctx, markerID, false, "set marker invisible")
}

// RestoreMarker reverses SetMarkerInvisible.
func (b *Backend) RestoreMarker(ctx context.Context, markerID string) error {
	return b.setVisible(ctx, markerID, true, "restore marker")
}

func (b *Backend) setVisible(ctx context.Context, markerID string, visible bool, op string) error {
	if err := b.checkOpen(op); err != nil {
		return err
	}

	res := b.deps.DB.WithContext(ctx).
		Model(&model.Marker{}).
		Where("id = ?", markerID).
		Update("visible", visible)
	if res.Error != nil {
		return core.Transport(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: marker %s", core.ErrNotFound, markerID)
	}

	b.publish(ctx, changefeed.TopicMarkers)
	return nil
}

// MarkRouteAsSent appends a send record and stores the refreshed aggregate grade.
func (b *Backend) MarkRouteAsSent(ctx context.Context, routeID string, rec core.SentRecord) error {
	if err := b.checkOpen("mark route as sent"); err != nil {
		return err
	}

	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRoute(tx, routeID); err != nil {
			return err
		}

		var sends []model.SentRecord
		if err := tx.Where("route_id = ?", routeID).Order("id").Find(&sends).Error; err != nil {
			return err
		}
		for _, s := range sends {
			if s.SenderID == rec.SenderID {
				return core.ErrAlreadySent
			}
		}

		row := convert.CoreToSentRecord(routeID, rec)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return core.ErrAlreadySent
			}
			return err
		}

		all := make([]core.SentRecord, 0, len(sends)+1)
		for _, s := range sends {
			all = append(all, convert.SentRecordToCore(s))
		}
		all = append(all, rec)

		return tx.Model(&model.Route{}).
			Where("id = ?", routeID).
			Update("voted_grade", core.AggregateGrade(all)).Error
	})
	if err != nil {
		return classify("mark route as sent", err)
	}

	b.publish(ctx, changefeed.RouteTopic(routeID))
	return nil
}

// Markers returns every marker, visible or not, in creation order.
func (b *Backend) Markers(ctx context.Context) ([]core.Marker, error) {
	if err := b.checkOpen("markers"); err != nil {
		return nil, err
	}

	var rows []model.Marker
	if err := b.deps.DB.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, core.Transport("markers", err)
	}
	return convert.MarkersToCore(rows), nil
}

// Route returns the route document with sends and votes in insertion order.
func (b *Backend) Route(ctx context.Context, routeID string) (core.RouteData, error) {
	if err := b.checkOpen("route"); err != nil {
		return core.RouteData{}, err
	}

	var row model.Route
	err := b.deps.DB.WithContext(ctx).
		Preload("SentBy", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("DeleteVotes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&row, "id = ?", routeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.RouteData{}, fmt.Errorf("%w: route %s", core.ErrNotFound, routeID)
	}
	if err != nil {
		return core.RouteData{}, core.Transport("route", err)
	}
	return convert.RouteToCore(row), nil
}

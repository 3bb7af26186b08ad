// internal/storage/memory/memory_test.go
package memory

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/huiputin/routemap/internal/config"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/pkg/core"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

var ctx = context.Background()

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(config.MemoryConfig{})
	if err := b.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func createRoute(t *testing.T, b *Backend, x, y float64) core.Marker {
	t.Helper()
	m, err := b.CreateRoute(ctx, core.Position{X: x, Y: y}, core.RouteDraft{Name: "Crimp", Grade: "yellow", HoldColor: "red"})
	if err != nil {
		t.Fatalf("CreateRoute failed: %v", err)
	}
	return m
}

func TestCreateRoute(t *testing.T) {
	b := newBackend(t)

	m := createRoute(t, b, 5, 6)

	if m.ID == "" || m.RouteID == "" {
		t.Fatalf("expected generated IDs, got %+v", m)
	}
	if !m.Visible {
		t.Error("new marker should be visible")
	}
	if m.X != 5 || m.Y != 6 {
		t.Errorf("expected position (5,6), got (%v,%v)", m.X, m.Y)
	}

	route, err := b.Route(ctx, m.RouteID)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if route.RouteName != "Crimp" || route.RouteGradeColor != "yellow" || route.RouteHoldColor != "red" {
		t.Errorf("unexpected route %+v", route)
	}
	if len(route.SentBy) != 0 || len(route.VotedForDelete) != 0 {
		t.Error("new route should have no sends or votes")
	}
}

func TestMarkers_CreationOrder(t *testing.T) {
	b := newBackend(t)
	first := createRoute(t, b, 1, 1)
	second := createRoute(t, b, 2, 2)
	third := createRoute(t, b, 3, 3)

	markers, err := b.Markers(ctx)
	if err != nil {
		t.Fatalf("Markers failed: %v", err)
	}
	if len(markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(markers))
	}
	for i, want := range []string{first.ID, second.ID, third.ID} {
		if markers[i].ID != want {
			t.Errorf("markers[%d] = %s, want %s", i, markers[i].ID, want)
		}
	}
}

func TestSubscribeMarkers_InitialAndUpdates(t *testing.T) {
	b := newBackend(t)
	createRoute(t, b, 1, 1)

	var snapshots [][]core.Marker
	unsub, err := b.SubscribeMarkers(ctx, func(ms []core.Marker) {
		snapshots = append(snapshots, ms)
	}, func(err error) { t.Errorf("unexpected error: %v", err) })
	if err != nil {
		t.Fatalf("SubscribeMarkers failed: %v", err)
	}

	if len(snapshots) != 1 || len(snapshots[0]) != 1 {
		t.Fatalf("expected initial snapshot with 1 marker, got %v", snapshots)
	}

	m := createRoute(t, b, 2, 2)
	if err := b.SetMarkerInvisible(ctx, m.ID); err != nil {
		t.Fatalf("SetMarkerInvisible failed: %v", err)
	}

	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}
	last := snapshots[2]
	if len(last) != 2 || last[1].Visible {
		t.Errorf("expected hidden second marker in last snapshot, got %+v", last)
	}

	unsub()
	unsub()
	createRoute(t, b, 3, 3)
	if len(snapshots) != 3 {
		t.Errorf("expected no delivery after unsubscribe, got %d snapshots", len(snapshots))
	}
}

func TestFetchRoute(t *testing.T) {
	b := newBackend(t)
	m := createRoute(t, b, 1, 1)

	var loading []bool
	var data []core.RouteData
	unsub, err := b.FetchRoute(ctx, m.RouteID,
		func(d core.RouteData) { data = append(data, d) },
		func(l bool) { loading = append(loading, l) },
		func(err error) { t.Errorf("unexpected error: %v", err) })
	if err != nil {
		t.Fatalf("FetchRoute failed: %v", err)
	}
	defer unsub()

	if len(loading) != 2 || !loading[0] || loading[1] {
		t.Errorf("expected loading [true false], got %v", loading)
	}
	if len(data) != 1 {
		t.Fatalf("expected initial route data, got %d", len(data))
	}

	if _, err := b.VoteForDelete(ctx, m.RouteID, "u1"); err != nil {
		t.Fatalf("VoteForDelete failed: %v", err)
	}
	if len(data) != 2 || len(data[1].VotedForDelete) != 1 {
		t.Errorf("expected pushed vote, got %+v", data)
	}
}

func TestFetchRoute_Unknown(t *testing.T) {
	b := newBackend(t)

	_, err := b.FetchRoute(ctx, "missing", func(core.RouteData) {}, func(bool) {}, func(error) {})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVoteForDelete(t *testing.T) {
	b := newBackend(t)
	m := createRoute(t, b, 1, 1)

	n, err := b.VoteForDelete(ctx, m.RouteID, "u1")
	if err != nil || n != 1 {
		t.Fatalf("first vote: n=%d err=%v", n, err)
	}
	_, err = b.VoteForDelete(ctx, m.RouteID, "u1")
	if !errors.Is(err, core.ErrAlreadyVoted) {
		t.Errorf("expected ErrAlreadyVoted, got %v", err)
	}
	n, err = b.VoteForDelete(ctx, m.RouteID, "u2")
	if err != nil || n != 2 {
		t.Errorf("second voter: n=%d err=%v", n, err)
	}

	if _, err := b.VoteForDelete(ctx, "missing", "u1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVoteForDelete_Concurrent(t *testing.T) {
	b := newBackend(t)
	m := createRoute(t, b, 1, 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, dup int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.VoteForDelete(ctx, m.RouteID, "same-user")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, core.ErrAlreadyVoted) {
				dup++
			}
		}()
	}
	wg.Wait()

	if ok != 1 || dup != 19 {
		t.Errorf("expected 1 success and 19 duplicates, got %d/%d", ok, dup)
	}
}

func TestMarkRouteAsSent(t *testing.T) {
	b := newBackend(t)
	m := createRoute(t, b, 1, 1)

	if err := b.MarkRouteAsSent(ctx, m.RouteID, core.SentRecord{SenderID: "u1", SenderName: "Aino", Grade: "6A", Tries: "1"}); err != nil {
		t.Fatalf("MarkRouteAsSent failed: %v", err)
	}
	if err := b.MarkRouteAsSent(ctx, m.RouteID, core.SentRecord{SenderID: "u2", SenderName: "Eero", Grade: "6B", Tries: "3"}); err != nil {
		t.Fatalf("MarkRouteAsSent failed: %v", err)
	}
	err := b.MarkRouteAsSent(ctx, m.RouteID, core.SentRecord{SenderID: "u1", SenderName: "Aino", Grade: "7A", Tries: "1"})
	if !errors.Is(err, core.ErrAlreadySent) {
		t.Errorf("expected ErrAlreadySent, got %v", err)
	}

	route, _ := b.Route(ctx, m.RouteID)
	if len(route.SentBy) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(route.SentBy))
	}
	if route.VotedGrade != core.AggregateGrade(route.SentBy) {
		t.Errorf("VotedGrade %q not refreshed", route.VotedGrade)
	}
}

func TestSetMarkerInvisibleAndRestore(t *testing.T) {
	b := newBackend(t)
	m := createRoute(t, b, 1, 1)

	if err := b.SetMarkerInvisible(ctx, m.ID); err != nil {
		t.Fatalf("SetMarkerInvisible failed: %v", err)
	}
	markers, _ := b.Markers(ctx)
	if markers[0].Visible {
		t.Error("marker should be hidden")
	}

	if err := b.RestoreMarker(ctx, m.ID); err != nil {
		t.Fatalf("RestoreMarker failed: %v", err)
	}
	markers, _ = b.Markers(ctx)
	if !markers[0].Visible {
		t.Error("marker should be visible again")
	}

	if err := b.SetMarkerInvisible(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRoute_ReturnsCopy(t *testing.T) {
	b := newBackend(t)
	m := createRoute(t, b, 1, 1)
	b.VoteForDelete(ctx, m.RouteID, "u1")

	route, _ := b.Route(ctx, m.RouteID)
	route.VotedForDelete[0].VotedBy = "tampered"

	again, _ := b.Route(ctx, m.RouteID)
	if again.VotedForDelete[0].VotedBy != "u1" {
		t.Error("Route must not expose internal slices")
	}
}

func TestClosed_ReturnsTransportError(t *testing.T) {
	b := New(config.MemoryConfig{})
	b.Init()
	m := createRoute(t, b, 1, 1)
	b.Close()

	checks := map[string]error{}
	_, checks["markers"] = b.Markers(ctx)
	_, checks["route"] = b.Route(ctx, m.RouteID)
	_, checks["vote"] = b.VoteForDelete(ctx, m.RouteID, "u1")
	checks["hide"] = b.SetMarkerInvisible(ctx, m.ID)
	checks["sent"] = b.MarkRouteAsSent(ctx, m.RouteID, core.SentRecord{SenderID: "u1"})
	_, checks["create"] = b.CreateRoute(ctx, core.Position{}, core.RouteDraft{})
	_, checks["subscribe"] = b.SubscribeMarkers(ctx, func([]core.Marker) {}, func(error) {})

	for name, err := range checks {
		if !errors.Is(err, core.ErrTransport) {
			t.Errorf("%s: expected ErrTransport, got %v", name, err)
		}
	}
}

func TestSeed(t *testing.T) {
	b := newBackend(t)
	b.Seed(
		[]core.Marker{{ID: "a", X: 1, Y: 1, RouteID: "ra", Visible: true}, {ID: "b", X: 2, Y: 2, RouteID: "rb"}},
		[]core.RouteData{{ID: "ra", RouteName: "A"}, {ID: "rb", RouteName: "B"}},
	)

	markers, _ := b.Markers(ctx)
	if len(markers) != 2 || markers[0].ID != "a" || markers[1].Visible {
		t.Errorf("unexpected seeded markers %+v", markers)
	}
	route, err := b.Route(ctx, "rb")
	if err != nil || route.RouteName != "B" {
		t.Errorf("unexpected seeded route %+v err=%v", route, err)
	}
}

func TestSnapshotPersistence(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			cfg := config.MemoryConfig{
				SnapshotPath: filepath.Join(t.TempDir(), "nested", "markers.json"),
				Compress:     compress,
			}

			b := New(cfg)
			if err := b.Init(); err != nil {
				t.Fatalf("Init on missing file failed: %v", err)
			}
			m := createRoute(t, b, 4, 2)
			b.MarkRouteAsSent(ctx, m.RouteID, core.SentRecord{SenderID: "u1", SenderName: "Aino", Grade: "6A", Tries: "2"})
			b.SetMarkerInvisible(ctx, m.ID)
			if err := b.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			reloaded := New(cfg)
			if err := reloaded.Init(); err != nil {
				t.Fatalf("Init reload failed: %v", err)
			}
			defer reloaded.Close()

			markers, _ := reloaded.Markers(ctx)
			if len(markers) != 1 || markers[0].ID != m.ID || markers[0].Visible {
				t.Fatalf("unexpected reloaded markers %+v", markers)
			}
			route, err := reloaded.Route(ctx, m.RouteID)
			if err != nil {
				t.Fatalf("Route after reload failed: %v", err)
			}
			if len(route.SentBy) != 1 || route.VotedGrade != "6A" {
				t.Errorf("unexpected reloaded route %+v", route)
			}
		})
	}
}

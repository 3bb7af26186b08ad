// internal/storage/memory/persist.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/huiputin/routemap/pkg/core"
)

// Snapshot is the on-disk form of the memory backend.
type Snapshot struct {
	Markers []core.Marker    `json:"markers"`
	Routes  []core.RouteData `json:"routes"`
}

// buildSnapshot must be called with b.mu held.
func (b *Backend) buildSnapshot() Snapshot {
	snap := Snapshot{
		Markers: make([]core.Marker, 0, len(b.order)),
		Routes:  make([]core.RouteData, 0, len(b.routes)),
	}
	for _, id := range b.order {
		m := *b.markers[id]
		snap.Markers = append(snap.Markers, m)
		if r, ok := b.routes[m.RouteID]; ok {
			snap.Routes = append(snap.Routes, *r)
		}
	}
	return snap
}

// save writes the snapshot file. Must be called with b.mu held.
func (b *Backend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.cfg.SnapshotPath), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	snap := b.buildSnapshot()
	if b.cfg.Compress {
		return writeGzipJSON(b.cfg.SnapshotPath, snap)
	}
	return writeJSON(b.cfg.SnapshotPath, snap)
}

// load reads the snapshot file if it exists. Must be called with b.mu held.
func (b *Backend) load() error {
	f, err := os.Open(b.cfg.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if b.cfg.Compress {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip snapshot: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	for _, m := range snap.Markers {
		b.putMarker(m)
	}
	for _, rt := range snap.Routes {
		b.putRoute(rt)
	}
	return nil
}

func writeJSON(path string, data Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeGzipJSON(path string, data Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	defer gw.Close()

	encoder := json.NewEncoder(gw)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

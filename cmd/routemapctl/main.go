// Command routemapctl inspects and repairs the route store offline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/huiputin/routemap/internal/cluster"
	"github.com/huiputin/routemap/internal/config"
	"github.com/huiputin/routemap/internal/database"
	"github.com/huiputin/routemap/internal/sector"
	"github.com/huiputin/routemap/internal/storage"
	gormstorage "github.com/huiputin/routemap/internal/storage/gorm"
	"github.com/huiputin/routemap/internal/storage/memory"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

const usage = `usage: routemapctl [-c configDir] <command> [args]

commands:
  markers             list every marker, hidden ones included
  clusters            per-sector counts of visible markers
  route <id>...       print route documents
  restore <markerId>  make a soft-deleted marker visible again
`

func main() {
	configDir := pflag.StringP("config", "c", ".", "directory holding "+config.FileName)
	pflag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := config.Load(*configDir); err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}

	backend, closeFn, err := openBackend(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := runCommand(ctx, backend, strings.ToLower(args[0]), args[1:]); err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		closeFn()
		os.Exit(1)
	}
}

// openBackend opens the configured store for one-shot access. The sqlite
// backend reads its last dump file.
func openBackend(log zerolog.Logger) (storage.Backend, func(), error) {
	storageCfg := config.GetStorageConfig()

	switch storageCfg.Type {
	case "postgres", "sqlite":
		m := database.NewManager(log)
		if err := m.Connect(storageCfg.Type, storageCfg.SQLite.DumpPath); err != nil {
			return nil, nil, err
		}
		if err := m.Setup(); err != nil {
			_ = m.Close()
			return nil, nil, err
		}
		b := gormstorage.New(gormstorage.Dependencies{DB: m.DB})
		if err := b.Init(); err != nil {
			_ = m.Close()
			return nil, nil, err
		}
		return b, func() {
			_ = b.Close()
			_ = m.Close()
		}, nil
	case "memory", "":
		if storageCfg.Memory.SnapshotPath == "" {
			return nil, nil, fmt.Errorf("memory storage has no snapshotPath, nothing to inspect")
		}
		b := memory.New(storageCfg.Memory)
		if err := b.Init(); err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to write snapshot")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

func runCommand(ctx context.Context, b storage.Backend, cmd string, args []string) error {
	switch cmd {
	case "markers":
		markers, err := b.Markers(ctx)
		if err != nil {
			return err
		}
		return printJSON(markers)
	case "clusters":
		markers, err := b.Markers(ctx)
		if err != nil {
			return err
		}
		index, err := sectorIndex(b)
		if err != nil {
			return err
		}
		return printJSON(cluster.Aggregate(markers, index))
	case "route":
		if len(args) == 0 {
			return fmt.Errorf("no route ids provided")
		}
		for _, id := range args {
			route, err := b.Route(ctx, id)
			if err != nil {
				return fmt.Errorf("route %s: %w", id, err)
			}
			if err := printJSON(route); err != nil {
				return err
			}
		}
		return nil
	case "restore":
		if len(args) != 1 {
			return fmt.Errorf("restore takes exactly one marker id")
		}
		if err := b.RestoreMarker(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("marker %s restored\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// sectorIndex prefers the layout the service stored in the database, so the
// counts match what routemapd reported even when the local config differs.
func sectorIndex(b storage.Backend) (*sector.Index, error) {
	if sql, ok := b.(interface{ DB() *gorm.DB }); ok {
		sectors, err := database.LoadSectors(sql.DB())
		if err != nil {
			return nil, err
		}
		if len(sectors) > 0 {
			return sector.NewIndex(sectors)
		}
	}
	return sector.FromConfig()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"reconmc/server/internal/db"
	"reconmc/shared/types"
)

// maxScanHistory bounds the number of entries kept per server row, newest
// first, dropping the oldest once the cap is exceeded.
const maxScanHistory = 100

// gormServerRepository is the GORM implementation of ServerRepository.
// Hostnames and ScanHistory are stored as JSON text columns rather than
// native jsonb so the same schema serves both the Postgres and SQLite
// backends; this repository is the only layer that marshals/unmarshals them,
// mirroring the teacher's Policy.Sources / Destination.Config convention.
type gormServerRepository struct {
	db *gorm.DB
}

// NewServerRepository returns a ServerRepository backed by the provided *gorm.DB.
func NewServerRepository(database *gorm.DB) ServerRepository {
	return &gormServerRepository{db: database}
}

func (r *gormServerRepository) GetByTarget(ctx context.Context, resolvedIP string, port int) (*db.Server, error) {
	var server db.Server
	err := r.db.WithContext(ctx).First(&server, "resolved_ip = ? AND port = ?", resolvedIP, port).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("servers: get by target: %w", err)
	}
	return &server, nil
}

func (r *gormServerRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Server, error) {
	var server db.Server
	err := r.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("servers: get by id: %w", err)
	}
	return &server, nil
}

// Upsert creates the server row on first scan of a target, or merges a new
// hostname and prepends the entries of server.ScanHistory onto an existing
// one. An empty ScanHistory adds no history entry, but the call still
// counts as a scan (ScanCount is incremented).
func (r *gormServerRepository) Upsert(ctx context.Context, server *db.Server) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.Server
		err := tx.First(&existing, "resolved_ip = ? AND port = ?", server.ResolvedIP, server.Port).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if server.FirstSeenAt.IsZero() {
				server.FirstSeenAt = server.LastScannedAt
			}
			server.ScanCount = 1
			hostnames := []string{}
			if server.PrimaryHostname != "" {
				hostnames = append(hostnames, server.PrimaryHostname)
			}
			if err := setHostnames(server, hostnames); err != nil {
				return err
			}
			if err := tx.Create(server).Error; err != nil {
				return fmt.Errorf("servers: create: %w", err)
			}
			return nil

		case err != nil:
			return fmt.Errorf("servers: upsert lookup: %w", err)
		}

		hostnames, err := getHostnames(&existing)
		if err != nil {
			return err
		}
		if server.PrimaryHostname != "" && !containsString(hostnames, server.PrimaryHostname) {
			hostnames = append(hostnames, server.PrimaryHostname)
		}

		history, err := getScanHistory(&existing)
		if err != nil {
			return err
		}
		newHistory, err := getScanHistory(server)
		if err == nil && len(newHistory) > 0 {
			history = append(newHistory, history...)
		}
		if len(history) > maxScanHistory {
			history = history[:maxScanHistory]
		}

		existing.ServerAddress = server.ServerAddress
		if server.PrimaryHostname != "" {
			existing.PrimaryHostname = server.PrimaryHostname
		}
		existing.LastScannedAt = server.LastScannedAt
		existing.ScanCount++
		if server.LatestResult != "" {
			existing.LatestResult = server.LatestResult
		}

		if err := setHostnames(&existing, hostnames); err != nil {
			return err
		}
		if err := setScanHistory(&existing, history); err != nil {
			return err
		}

		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("servers: update: %w", err)
		}
		*server = existing
		return nil
	})
}

func (r *gormServerRepository) List(ctx context.Context, opts ListOptions) ([]db.Server, int64, error) {
	var servers []db.Server
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Server{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("servers: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("last_scanned_at DESC").
		Find(&servers).Error; err != nil {
		return nil, 0, fmt.Errorf("servers: list: %w", err)
	}

	return servers, total, nil
}

func getHostnames(s *db.Server) ([]string, error) {
	if s.Hostnames == "" {
		return nil, nil
	}
	var hostnames []string
	if err := json.Unmarshal([]byte(s.Hostnames), &hostnames); err != nil {
		return nil, fmt.Errorf("servers: decode hostnames: %w", err)
	}
	return hostnames, nil
}

func setHostnames(s *db.Server, hostnames []string) error {
	data, err := json.Marshal(hostnames)
	if err != nil {
		return fmt.Errorf("servers: encode hostnames: %w", err)
	}
	s.Hostnames = string(data)
	return nil
}

func getScanHistory(s *db.Server) ([]types.ScanHistoryEntry, error) {
	if s.ScanHistory == "" {
		return nil, nil
	}
	var history []types.ScanHistoryEntry
	if err := json.Unmarshal([]byte(s.ScanHistory), &history); err != nil {
		return nil, fmt.Errorf("servers: decode scan history: %w", err)
	}
	return history, nil
}

func setScanHistory(s *db.Server, history []types.ScanHistoryEntry) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("servers: encode scan history: %w", err)
	}
	s.ScanHistory = string(data)
	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

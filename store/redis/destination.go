package redis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// destinationModel is the JSON representation stored in Redis.
type destinationModel struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	Enabled       bool      `json:"enabled"`
	ConfigEnc     string    `json:"config_enc,omitempty"`
	IncludeEvents []string  `json:"include_events,omitempty"`
	ExcludeEvents []string  `json:"exclude_events,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toDestinationModel(dest *destination.Destination) *destinationModel {
	return &destinationModel{
		ID:            dest.ID.String(),
		Type:          string(dest.Type),
		Name:          dest.Name,
		Enabled:       dest.Enabled,
		ConfigEnc:     dest.ConfigEnc,
		IncludeEvents: dest.IncludeEvents,
		ExcludeEvents: dest.ExcludeEvents,
		CreatedAt:     dest.CreatedAt,
		UpdatedAt:     dest.UpdatedAt,
	}
}

func fromDestinationModel(m *destinationModel) (*destination.Destination, error) {
	destID, err := id.ParseDestinationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse destination ID %q: %w", m.ID, err)
	}
	return &destination.Destination{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            destID,
		Type:          destination.Type(m.Type),
		Name:          m.Name,
		Enabled:       m.Enabled,
		ConfigEnc:     m.ConfigEnc,
		IncludeEvents: m.IncludeEvents,
		ExcludeEvents: m.ExcludeEvents,
	}, nil
}

func destTypeNameKey(t destination.Type, name string) string {
	return uniqueDestTypeName + string(t) + ":" + name
}

// UpsertDestination creates or updates a destination keyed by (Type, Name).
// On update the stored ID and CreatedAt are preserved and written back.
func (s *Store) UpsertDestination(ctx context.Context, dest *destination.Destination) error {
	idxKey := destTypeNameKey(dest.Type, dest.Name)

	wasSet, err := s.rdb.SetNX(ctx, idxKey, dest.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("beacon/redis: upsert destination index: %w", err)
	}
	if !wasSet {
		existingRaw, err := s.rdb.Get(ctx, idxKey).Result()
		if err != nil {
			return fmt.Errorf("beacon/redis: read destination index: %w", err)
		}
		existingID, err := id.ParseDestinationID(existingRaw)
		if err != nil {
			return fmt.Errorf("beacon/redis: corrupt destination index %q: %w", existingRaw, err)
		}
		var prev destinationModel
		if err := s.getEntity(ctx, entityKey(prefixDestination, existingRaw), &prev); err == nil {
			dest.CreatedAt = prev.CreatedAt
		}
		dest.ID = existingID
	}
	dest.UpdatedAt = now()

	m := toDestinationModel(dest)
	if err := s.setEntity(ctx, entityKey(prefixDestination, m.ID), m); err != nil {
		return fmt.Errorf("beacon/redis: upsert destination: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zDestAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("beacon/redis: upsert destination index: %w", err)
	}
	return nil
}

// GetDestination returns a destination by ID.
func (s *Store) GetDestination(ctx context.Context, destID id.ID) (*destination.Destination, error) {
	var m destinationModel
	if err := s.getEntity(ctx, entityKey(prefixDestination, destID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, beacon.ErrDestinationNotFound
		}
		return nil, fmt.Errorf("beacon/redis: get destination: %w", err)
	}
	return fromDestinationModel(&m)
}

// DeleteDestination removes a destination and its indexes.
func (s *Store) DeleteDestination(ctx context.Context, destID id.ID) error {
	dest, err := s.GetDestination(ctx, destID)
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, entityKey(prefixDestination, destID.String()))
	pipe.Del(ctx, destTypeNameKey(dest.Type, dest.Name))
	pipe.ZRem(ctx, zDestAll, destID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("beacon/redis: delete destination: %w", err)
	}
	return nil
}

// ListDestinations returns all destinations, most recently updated first.
func (s *Store) ListDestinations(ctx context.Context) ([]*destination.Destination, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDestAll, math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, fmt.Errorf("beacon/redis: list destinations: %w", err)
	}

	result := make([]*destination.Destination, 0, len(ids))
	for _, destID := range ids {
		var m destinationModel
		if err := s.getEntity(ctx, entityKey(prefixDestination, destID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		dest, err := fromDestinationModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, dest)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// ListEnabledByType returns the enabled destinations of the given platform
// type, oldest first.
func (s *Store) ListEnabledByType(ctx context.Context, t destination.Type) ([]*destination.Destination, error) {
	all, err := s.ListDestinations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*destination.Destination, 0, len(all))
	for _, dest := range all {
		if dest.Type == t && dest.Enabled {
			result = append(result, dest)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

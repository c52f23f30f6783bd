package destination

import (
	"context"
	"log/slog"

	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
	"github.com/beaconhq/beacon/vault"
)

// Service provides destination management operations. All config blobs pass
// through the vault: sealed on write, opened transiently on read.
type Service struct {
	store  Store
	vault  *vault.Vault
	logger *slog.Logger
}

// NewService creates a destination service.
func NewService(store Store, v *vault.Vault, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		vault:  v,
		logger: logger,
	}
}

// Upsert creates or updates a destination. A nil Config leaves the
// destination without credentials; dispatch skips it until configured.
func (svc *Service) Upsert(ctx context.Context, in Input) (*Destination, error) {
	if !in.Type.Valid() {
		return nil, &ValidationError{Field: "type", Message: "unknown platform type"}
	}
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}

	dest := &Destination{
		Entity:        entity.New(),
		ID:            id.NewDestinationID(),
		Type:          in.Type,
		Name:          in.Name,
		Enabled:       in.Enabled,
		IncludeEvents: in.IncludeEvents,
		ExcludeEvents: in.ExcludeEvents,
	}

	if in.Config != nil {
		sealed, err := svc.vault.Seal(in.Config)
		if err != nil {
			return nil, err
		}
		dest.ConfigEnc = sealed
	}

	if err := svc.store.UpsertDestination(ctx, dest); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "destination upserted",
		"id", dest.ID,
		"type", dest.Type,
		"name", dest.Name,
		"enabled", dest.Enabled,
	)

	return dest, nil
}

// Get returns a destination by ID.
func (svc *Service) Get(ctx context.Context, destID id.ID) (*Destination, error) {
	return svc.store.GetDestination(ctx, destID)
}

// Delete removes a destination.
func (svc *Service) Delete(ctx context.Context, destID id.ID) error {
	if err := svc.store.DeleteDestination(ctx, destID); err != nil {
		return err
	}
	svc.logger.InfoContext(ctx, "destination deleted", "id", destID)
	return nil
}

// Listed pairs a destination with its decrypted config for administrative
// inspection. The decrypted form exists only in this response, never at rest.
type Listed struct {
	*Destination

	Config map[string]any `json:"config,omitempty"`
}

// List returns all destinations with their configs opened.
func (svc *Service) List(ctx context.Context) ([]*Listed, error) {
	dests, err := svc.store.ListDestinations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*Listed, 0, len(dests))
	for _, d := range dests {
		listed := &Listed{Destination: d}
		if d.ConfigEnc != "" {
			cfg, openErr := svc.vault.Open(d.ConfigEnc)
			if openErr != nil {
				return nil, openErr
			}
			listed.Config = cfg
		}
		result = append(result, listed)
	}
	return result, nil
}

// ResolveConfig opens the sealed config of a destination for a dispatch
// attempt. Returns nil when the destination has no credentials configured.
func (svc *Service) ResolveConfig(ctx context.Context, d *Destination) (map[string]any, error) {
	if d.ConfigEnc == "" {
		return nil, nil
	}
	return svc.vault.Open(d.ConfigEnc)
}

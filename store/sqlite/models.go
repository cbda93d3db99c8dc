package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/ident/id"
	"github.com/xraph/ident/principal"
)

// ──────────────────────────────────────────────────
// Partition model
// ──────────────────────────────────────────────────

// partitionModel is one row of ident_partitions: a single connector-local
// projection of a principal. Domain is duplicated on every row.
type partitionModel struct {
	grove.BaseModel  `grove:"table:ident_partitions"`
	ID               string    `grove:"id,pk"`
	Kind             string    `grove:"kind,notnull"`
	PrincipalID      string    `grove:"principal_id,notnull"`
	ConnectorLocalID string    `grove:"connector_local_id,notnull"`
	ConnectorID      string    `grove:"connector_id,notnull"`
	Domain           string    `grove:"domain,notnull"`
	StoreKind        string    `grove:"store_kind,notnull"`
	CreatedAt        time.Time `grove:"created_at,notnull"`
	UpdatedAt        time.Time `grove:"updated_at,notnull"`
}

func partitionsToModels(p *principal.Principal, now time.Time) []partitionModel {
	models := make([]partitionModel, len(p.Partitions))
	for i, part := range p.Partitions {
		models[i] = partitionModel{
			ID:               id.NewPartitionID().String(),
			Kind:             string(p.Kind),
			PrincipalID:      p.ID,
			ConnectorLocalID: part.ConnectorLocalID,
			ConnectorID:      part.ConnectorID,
			Domain:           p.Domain,
			StoreKind:        string(part.StoreKind),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}
	return models
}

// principalFromModels folds the rows of one principal back into the entity.
func principalFromModels(models []partitionModel) *principal.Principal {
	if len(models) == 0 {
		return nil
	}
	p := &principal.Principal{
		ID:         models[0].PrincipalID,
		Kind:       principal.Kind(models[0].Kind),
		Domain:     models[0].Domain,
		Partitions: make([]principal.Partition, len(models)),
	}
	for i, m := range models {
		p.Partitions[i] = principal.Partition{
			ConnectorID:      m.ConnectorID,
			ConnectorLocalID: m.ConnectorLocalID,
			StoreKind:        principal.StoreKind(m.StoreKind),
		}
	}
	return p
}

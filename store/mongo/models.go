package mongo

import (
	"strconv"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/ident/id"
	"github.com/xraph/ident/principal"
)

// ──────────────────────────────────────────────────
// Principal document
// ──────────────────────────────────────────────────

// principalModel is one document per principal. Partitions are embedded, so
// every write is a single-document (atomic) operation. PartitionKeys carries a
// unique multikey index that enforces one owner per connector-local record
// across documents.
type principalModel struct {
	grove.BaseModel `grove:"table:ident_principals"`
	ID              string           `grove:"id,pk"          bson:"_id"`
	Kind            string           `grove:"kind"           bson:"kind"`
	PrincipalID     string           `grove:"principal_id"   bson:"principal_id"`
	Domain          string           `grove:"domain"         bson:"domain"`
	Partitions      []partitionModel `grove:"partitions"     bson:"partitions"`
	PartitionKeys   []string         `grove:"partition_keys" bson:"partition_keys"`
	Version         int64            `grove:"version"        bson:"version"`
	CreatedAt       time.Time        `grove:"created_at"     bson:"created_at"`
	UpdatedAt       time.Time        `grove:"updated_at"     bson:"updated_at"`
}

type partitionModel struct {
	ID               string    `bson:"id"`
	ConnectorID      string    `bson:"connector_id"`
	ConnectorLocalID string    `bson:"connector_local_id"`
	StoreKind        string    `bson:"store_kind"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func docID(kind principal.Kind, principalID string) string {
	return string(kind) + ":" + principalID
}

// partitionKey encodes a connector-local record as kind|len:connector|local.
// The length prefix keeps the encoding unambiguous when ids contain "|".
func partitionKey(kind principal.Kind, connectorID, connectorLocalID string) string {
	return string(kind) + "|" + strconv.Itoa(len(connectorID)) + ":" + connectorID + "|" + connectorLocalID
}

func principalToModel(p *principal.Principal, t time.Time) *principalModel {
	m := &principalModel{
		ID:          docID(p.Kind, p.ID),
		Kind:        string(p.Kind),
		PrincipalID: p.ID,
		Domain:      p.Domain,
		Partitions:  make([]partitionModel, len(p.Partitions)),
		Version:     1,
		CreatedAt:   t,
		UpdatedAt:   t,
	}
	for i, part := range p.Partitions {
		m.Partitions[i] = partitionModel{
			ID:               id.NewPartitionID().String(),
			ConnectorID:      part.ConnectorID,
			ConnectorLocalID: part.ConnectorLocalID,
			StoreKind:        string(part.StoreKind),
			CreatedAt:        t,
			UpdatedAt:        t,
		}
	}
	m.refreshKeys()
	return m
}

// refreshKeys rebuilds PartitionKeys from Partitions.
func (m *principalModel) refreshKeys() {
	kind := principal.Kind(m.Kind)
	m.PartitionKeys = make([]string, len(m.Partitions))
	for i, part := range m.Partitions {
		m.PartitionKeys[i] = partitionKey(kind, part.ConnectorID, part.ConnectorLocalID)
	}
}

func (m *principalModel) find(connectorID string) *partitionModel {
	for i := range m.Partitions {
		if m.Partitions[i].ConnectorID == connectorID {
			return &m.Partitions[i]
		}
	}
	return nil
}

func principalFromModel(m *principalModel) *principal.Principal {
	p := &principal.Principal{
		ID:         m.PrincipalID,
		Kind:       principal.Kind(m.Kind),
		Domain:     m.Domain,
		Partitions: make([]principal.Partition, len(m.Partitions)),
	}
	for i, part := range m.Partitions {
		p.Partitions[i] = principal.Partition{
			ConnectorID:      part.ConnectorID,
			ConnectorLocalID: part.ConnectorLocalID,
			StoreKind:        principal.StoreKind(part.StoreKind),
		}
	}
	return p
}

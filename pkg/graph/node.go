package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/sage/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/sage/pkg/models"
)

// NodeService mirrors canonical records as graph nodes. Each reference table
// becomes a node label; the record id identifies the node within that label.
type NodeService struct {
	client *Client
	logger ectologger.Logger
}

// NewNodeService creates a new node service
func NewNodeService(client *Client, logger ectologger.Logger) *NodeService {
	return &NodeService{
		client: client,
		logger: logger,
	}
}

// CreateOrUpdate mirrors one canonical record into the graph
func (s *NodeService) CreateOrUpdate(ctx context.Context, record *models.CanonicalRecord) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.CreateOrUpdate")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"table":     record.Table,
		"record_id": record.ID,
	})

	props := nodeProps(record)

	// Records are append-only, but MERGE keeps the mirror idempotent when the
	// same record is replayed.
	cypher := fmt.Sprintf(`
		MERGE (r:%s {record_id: $record_id})
		SET r = $props
		RETURN r
	`, sanitizeLabel(record.Table))

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"record_id": record.ID,
			"props":     props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to mirror record into graph")
		return fmt.Errorf("failed to mirror record into graph: %w", err)
	}

	log.Debug("Mirrored record into graph")
	return nil
}

// Get retrieves a mirrored record node by id
func (s *NodeService) Get(ctx context.Context, table string, recordID int64) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.Get")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (r:%s {record_id: $record_id})
		RETURN r
	`, sanitizeLabel(table))

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"record_id": recordID,
		})
		if err != nil {
			return nil, err
		}

		if result.Next(ctx) {
			record := result.Record()
			node, ok := record.Get("r")
			if !ok {
				return nil, nil
			}
			n := node.(neo4j.Node)
			return n.Props, nil
		}
		return nil, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get record from graph: %w", err)
	}

	if result == nil {
		return nil, nil
	}

	return result.(map[string]any), nil
}

// BatchCreateOrUpdate mirrors multiple records in a single transaction
func (s *NodeService) BatchCreateOrUpdate(ctx context.Context, records []*models.CanonicalRecord) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.BatchCreateOrUpdate")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(records),
	})

	// Group records by table so each UNWIND targets a single label
	byTable := make(map[string][]*models.CanonicalRecord)
	for _, r := range records {
		byTable[r.Table] = append(byTable[r.Table], r)
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for table, tableRecords := range byTable {
			batchData := make([]map[string]any, len(tableRecords))
			for i, record := range tableRecords {
				batchData[i] = nodeProps(record)
			}

			cypher := fmt.Sprintf(`
				UNWIND $batch AS props
				MERGE (r:%s {record_id: props.record_id})
				SET r = props
			`, sanitizeLabel(table))

			_, err := tx.Run(ctx, cypher, map[string]any{"batch": batchData})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to batch mirror records into graph")
		return fmt.Errorf("failed to batch mirror records: %w", err)
	}

	log.Debug("Batch mirrored records into graph")
	return nil
}

func nodeProps(record *models.CanonicalRecord) map[string]any {
	props := map[string]any{
		"record_id":  record.ID,
		"table":      record.Table,
		"name":       record.Name,
		"created_by": record.CreatedBy,
		"created_at": record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if record.ShortName != nil {
		props["short_name"] = *record.ShortName
	}
	return props
}

// sanitizeLabel ensures the label is safe for Cypher
func sanitizeLabel(label string) string {
	result := ""
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return "Record"
	}
	return result
}

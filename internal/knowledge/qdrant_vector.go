package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	qdrantclient "github.com/qdrant/go-client/qdrant"

	"github.com/soochol/actionplan/internal/domain"
)

// QdrantVectorStore stores ContentChunk (and mirrored summary) vectors in
// named Qdrant collections, one point per chunk_id.
type QdrantVectorStore struct {
	client    *qdrantclient.Client
	dimension int
}

// NewQdrantVectorStore wraps an already-connected client. Collections are
// created lazily on first Upsert if they do not already exist.
func NewQdrantVectorStore(client *qdrantclient.Client, dimension int) *QdrantVectorStore {
	return &QdrantVectorStore{client: client, dimension: dimension}
}

func (q *QdrantVectorStore) ensureCollection(ctx context.Context, collection string) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrantclient.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrantclient.NewVectorsConfig(&qdrantclient.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrantclient.Distance_Cosine,
		}),
	})
}

func metadataPayload(chunk domain.ContentChunk) (map[string]*qdrantclient.Value, error) {
	m := map[string]any{
		"node_id":        chunk.NodeID,
		"text":           chunk.Text,
		"start_line":     chunk.StartLine,
		"end_line":       chunk.EndLine,
		"source":         chunk.Metadata.Source,
		"is_rule":        chunk.Metadata.IsRule,
		"hierarchy_path": chunk.Metadata.HierarchyPath,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return qdrantclient.TryValueMap(generic)
}

func (q *QdrantVectorStore) Upsert(ctx context.Context, collection string, chunks []domain.ContentChunk) error {
	if err := q.ensureCollection(ctx, collection); err != nil {
		return err
	}

	points := make([]*qdrantclient.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload, err := metadataPayload(c)
		if err != nil {
			return fmt.Errorf("build payload for chunk %s: %w", c.ChunkID, err)
		}
		points = append(points, &qdrantclient.PointStruct{
			Id:      qdrantclient.NewID(c.ChunkID),
			Vectors: qdrantclient.NewVectors(c.Embedding...),
			Payload: payload,
		})
	}

	_, err := q.client.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points to %s: %w", len(points), collection, err)
	}
	return nil
}

func (q *QdrantVectorStore) Query(ctx context.Context, collection string, queryVector []float32, topK int, filter *Filter) ([]ScoredChunk, error) {
	query := &qdrantclient.QueryPoints{
		CollectionName: collection,
		Query:          qdrantclient.NewQuery(queryVector...),
		Limit:          ptrUint64(uint64(topK)),
		WithPayload:    qdrantclient.NewWithPayload(true),
	}
	if filter != nil && len(filter.DocumentWhitelist) > 0 {
		should := make([]*qdrantclient.Condition, 0, len(filter.DocumentWhitelist))
		for _, doc := range filter.DocumentWhitelist {
			should = append(should, qdrantclient.NewMatch("source", doc))
		}
		query.Filter = &qdrantclient.Filter{Should: should}
	}

	points, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	out := make([]ScoredChunk, 0, len(points))
	for _, p := range points {
		chunk := domain.ContentChunk{ChunkID: p.GetId().GetUuid()}
		payload := p.GetPayload()
		if v, ok := payload["node_id"]; ok {
			chunk.NodeID = v.GetStringValue()
		}
		if v, ok := payload["text"]; ok {
			chunk.Text = v.GetStringValue()
		}
		if v, ok := payload["source"]; ok {
			chunk.Metadata.Source = v.GetStringValue()
		}
		if v, ok := payload["is_rule"]; ok {
			chunk.Metadata.IsRule = v.GetBoolValue()
		}
		if v, ok := payload["hierarchy_path"]; ok {
			chunk.Metadata.HierarchyPath = v.GetStringValue()
		}
		score := float64(p.GetScore())
		if score < 0 {
			score = 0
		}
		out = append(out, ScoredChunk{Chunk: chunk, Score: score})
	}
	return out, nil
}

func (q *QdrantVectorStore) DeleteByDocument(ctx context.Context, collection, docName string) error {
	_, err := q.client.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: collection,
		Points: qdrantclient.NewPointsSelectorFilter(&qdrantclient.Filter{
			Must: []*qdrantclient.Condition{qdrantclient.NewMatch("source", docName)},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete document %s from %s: %w", docName, collection, err)
	}
	return nil
}

func ptrUint64(v uint64) *uint64 { return &v }

// Package knowledge holds the two cooperating stores of C3: a graph store
// for the document/heading hierarchy with per-heading summary embeddings,
// and a vector store for chunked content (and, optionally, mirrored
// summary vectors for graph-aware retrieval). Both are keyed identically
// by node_id.
package knowledge

import (
	"context"

	"github.com/soochol/actionplan/internal/domain"
)

// GraphStore owns DocumentNode/HeadingNode and the subsection-of edges,
// plus each HeadingNode's summary_embedding property. Writes are
// transactional per document. The in-memory implementation guards reads
// with a shared read lock: reads run concurrently with one another but
// wait while a write holds the lock.
type GraphStore interface {
	// PutDocument writes a document and its full heading tree atomically,
	// replacing any prior version of the same document (re-ingestion).
	PutDocument(ctx context.Context, doc domain.DocumentNode, headings []domain.HeadingNode) error

	// Heading looks up a single heading by id.
	Heading(ctx context.Context, id string) (*domain.HeadingNode, bool, error)

	// Headings returns multiple headings by id, skipping any not found.
	Headings(ctx context.Context, ids []string) ([]domain.HeadingNode, error)

	// Document looks up a document by name.
	Document(ctx context.Context, name string) (*domain.DocumentNode, bool, error)

	// AllHeadings returns every heading across every document, for
	// retrieval modes that scan the whole corpus (e.g. keyword search).
	AllHeadings(ctx context.Context) ([]domain.HeadingNode, error)

	// Children returns the direct children of a heading id.
	Children(ctx context.Context, id string) ([]domain.HeadingNode, error)

	// Parent returns the parent heading of id, if any.
	Parent(ctx context.Context, id string) (*domain.HeadingNode, bool, error)

	// RuleDocuments returns the names of every document with is_rule=true.
	RuleDocuments(ctx context.Context) ([]string, error)

	// DeleteDocument removes a document and its heading subtree (used to
	// roll back a failed ingestion).
	DeleteDocument(ctx context.Context, name string) error
}

// VectorStore holds ContentChunk (and optionally summary-vector) records
// in one or more named collections.
type VectorStore interface {
	// Upsert writes chunks into the named collection.
	Upsert(ctx context.Context, collection string, chunks []domain.ContentChunk) error

	// Query performs a cosine-similarity search over a collection and
	// returns up to topK matches. The returned score is in [0,1].
	Query(ctx context.Context, collection string, queryVector []float32, topK int, filter *Filter) ([]ScoredChunk, error)

	// DeleteByDocument removes every chunk whose metadata.source equals
	// docName from the named collection.
	DeleteByDocument(ctx context.Context, collection, docName string) error
}

// Filter restricts a vector query to a document whitelist (plus
// always-include rule documents, applied by the retrieval layer above this
// store).
type Filter struct {
	DocumentWhitelist []string
}

// ScoredChunk pairs a ContentChunk with its similarity score.
type ScoredChunk struct {
	Chunk domain.ContentChunk
	Score float64
}

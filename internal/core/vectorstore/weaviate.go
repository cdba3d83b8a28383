package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	wvmodels "github.com/weaviate/weaviate/entities/models"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

const batchSize = 200

type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string
	Class  string
}

// WeaviateStore keeps chunk segments in one class with caller-supplied vectors.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
}

func NewWeaviateStore(ctx context.Context, cfg WeaviateConfig) (*WeaviateStore, error) {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := strings.TrimPrefix(strings.TrimPrefix(cfg.Host, "https://"), "http://")

	wcfg := weaviate.Config{Host: host, Scheme: scheme}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	s := &WeaviateStore{client: client, class: cfg.Class}
	if s.class == "" {
		s.class = "ExamChunk"
	}
	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("get weaviate schema: %w", err)
	}
	for _, c := range schema.Classes {
		if c.Class == s.class {
			return nil
		}
	}
	if err := s.client.Schema().ClassCreator().WithClass(ClassDefinition(s.class)).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", s.class, err)
	}
	return nil
}

// ClassDefinition describes the chunk class. Vectors are supplied by the caller.
func ClassDefinition(name string) *wvmodels.Class {
	indexed := false
	return &wvmodels.Class{
		Class:      name,
		Vectorizer: "none",
		Properties: []*wvmodels.Property{
			{Name: "document_hash", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "text", DataType: []string{"text"}},
			{Name: "payload", DataType: []string{"text"}, IndexFilterable: &indexed, IndexSearchable: &indexed},
		},
		VectorIndexType: "hnsw",
	}
}

func (s *WeaviateStore) Upsert(ctx context.Context, points []models.VectorPoint) error {
	objects, err := buildObjects(s.class, points)
	if err != nil {
		return err
	}

	for start := 0; start < len(objects); start += batchSize {
		end := min(start+batchSize, len(objects))
		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects[start:end]...).Do(ctx)
		if err != nil {
			return fmt.Errorf("weaviate batch %d-%d: %w", start, end, err)
		}
		if err := batchErrors(resp); err != nil {
			return err
		}
	}
	return nil
}

// buildObjects maps points to weaviate objects. Weaviate requires UUID ids,
// which the deterministic vector ids already are.
func buildObjects(class string, points []models.VectorPoint) ([]*wvmodels.Object, error) {
	out := make([]*wvmodels.Object, 0, len(points))
	for _, p := range points {
		if !strfmt.IsUUID(p.ID) {
			return nil, fmt.Errorf("vector id %q is not a uuid", p.ID)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload %s: %w", p.ID, err)
		}
		out = append(out, &wvmodels.Object{
			Class: class,
			ID:    strfmt.UUID(p.ID),
			Properties: map[string]interface{}{
				"document_hash": p.Payload.DocumentHash,
				"text":          p.Payload.Text,
				"payload":       string(payload),
			},
			Vector: p.Vector,
		})
	}
	return out, nil
}

func batchErrors(resp []wvmodels.ObjectsGetResponse) error {
	var errs []error
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			errs = append(errs, fmt.Errorf("object %s: %s", r.ID, e.Message))
		}
	}
	return errors.Join(errs...)
}

func (s *WeaviateStore) Search(ctx context.Context, vector []float32, filter models.SearchFilter, limit int) ([]models.SearchHit, error) {
	if len(filter.DocumentHashes) == 0 || limit <= 0 {
		return nil, nil
	}

	where := filters.Where().
		WithPath([]string{"document_hash"}).
		WithOperator(filters.ContainsAny).
		WithValueText(filter.DocumentHashes...)

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(
			graphql.Field{Name: "payload"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
		).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: weaviate search: %s", core.ErrExternalService, result.Errors[0].Message)
	}
	return parseHits(result.Data, s.class)
}

func parseHits(data map[string]wvmodels.JSONObject, class string) ([]models.SearchHit, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	items, ok := get[class].([]interface{})
	if !ok {
		return nil, nil
	}

	hits := make([]models.SearchHit, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var hit models.SearchHit
		if raw, ok := obj["payload"].(string); ok {
			if err := json.Unmarshal([]byte(raw), &hit.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			hit.ID, _ = add["id"].(string)
			if d, ok := add["distance"].(float64); ok {
				hit.Score = float32(1 - d)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

var _ core.VectorStore = (*WeaviateStore)(nil)

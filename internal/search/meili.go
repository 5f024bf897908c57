package search

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	meili "github.com/meilisearch/meilisearch-go"
)

const IndexDocuments = "collabdocs_documents"

// Meili indexes and searches documents in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects to Meilisearch and configures the index when reachable.
// An unreachable server is retried by a background health loop.
func NewMeili(url, apiKey string, healthEvery time.Duration) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}
	if _, err := m.client.Health(); err != nil {
		logger.Warnf("search: meilisearch unavailable at %s: %v", url, err)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	if healthEvery > 0 {
		go m.healthLoop(healthEvery)
	}
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: IndexDocuments, PrimaryKey: "id"}); err != nil {
		logger.Debugf("search: create index %s (may already exist): %v", IndexDocuments, err)
	}
	index := m.client.Index(IndexDocuments)
	filterable := []interface{}{"author", "isPublic", "collaborators", "tags", "isArchived"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		logger.Warnf("search: update filterable attrs: %v", err)
	}
	searchable := []string{"title", "content", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		logger.Warnf("search: update searchable attrs: %v", err)
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				logger.Infof("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) IndexDocument(d document.Document) error {
	_, err := m.client.Index(IndexDocuments).AddDocuments([]Record{FromDocument(d)}, nil)
	return err
}

func (m *Meili) DeleteDocument(id string) error {
	_, err := m.client.Index(IndexDocuments).DeleteDocument(id, nil)
	return err
}

// SearchIDs returns ids of documents matching query that identity may read,
// best match first.
func (m *Meili) SearchIDs(_ context.Context, query, identity string, limit int) ([]string, error) {
	if !m.healthy.Load() {
		return nil, apperr.Unavailable("search index unavailable")
	}
	if limit <= 0 {
		limit = 20
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: IndexDocuments,
			Query:    strings.TrimSpace(query),
			Limit:    int64(limit),
			Filter:   AccessFilter(identity),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "search index unavailable")
	}
	ids := []string{}
	for _, r := range resp.Results {
		for _, hit := range r.Hits {
			if id := decodeString(hit, "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Package service runs document commands: load the record, apply a pure
// command from package document, persist explicitly, then notify the
// realtime hub and the search index.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/repository"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/models"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/realtime"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/storage"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/metrics"
)

// UserDirectory resolves collaborators.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Notifier receives server-originated change events.
type Notifier interface {
	Publish(docID, originID string, m realtime.Message) int
}

type Indexer interface {
	IndexDocument(d document.Document) error
	DeleteDocument(id string) error
}

type Searcher interface {
	SearchIDs(ctx context.Context, query, identity string, limit int) ([]string, error)
}

type Exporter interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	GetPresignedURL(ctx context.Context, key, filename string, expires time.Duration) (string, error)
}

// Options wires optional collaborators; nil members disable the feature.
type Options struct {
	Users        UserDirectory
	Notifier     Notifier
	Indexer      Indexer
	Searcher     Searcher
	Exporter     Exporter
	ExportExpiry time.Duration
	Now          func() time.Time
}

type Service struct {
	repo repository.Repository
	opts Options
}

func New(repo repository.Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.ExportExpiry <= 0 {
		opts.ExportExpiry = 15 * time.Minute
	}
	return &Service{repo: repo, opts: opts}
}

// Page is one page of a document listing.
type Page struct {
	Items    []document.Document `json:"documents"`
	Total    int64               `json:"total"`
	Page     int                 `json:"currentPage"`
	PageSize int                 `json:"pageSize"`
	Pages    int                 `json:"totalPages"`
}

// VersionList is the history of a document, newest snapshot first.
type VersionList struct {
	Versions       []document.Version `json:"versions"`
	CurrentVersion int                `json:"currentVersion"`
}

// Export describes an uploaded snapshot of a document.
type Export struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Version   int       `json:"version"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) Create(ctx context.Context, cmd document.CreateCommand, author string) (document.Document, error) {
	d, err := document.NewDocument(cmd, author, s.opts.Now())
	if err != nil {
		return document.Document{}, err
	}
	d, err = s.repo.Insert(ctx, d)
	if err != nil {
		return document.Document{}, err
	}
	s.index(d)
	return d, nil
}

// SeedSamples gives a new account its starter documents.
func (s *Service) SeedSamples(ctx context.Context, userID string) error {
	for _, cmd := range document.SampleDocuments() {
		if _, err := s.Create(ctx, cmd, userID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a readable document. Authenticated reads bump the access counter.
func (s *Service) Get(ctx context.Context, id, identity string) (document.Document, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return document.Document{}, err
	}
	if !document.HasReadAccess(d, identity) {
		return document.Document{}, document.ErrAccessDenied
	}
	if identity != "" {
		if err := s.repo.IncrementAccess(ctx, id); err != nil {
			logger.Warnf("documents: increment access %s: %v", id, err)
		} else {
			d.AccessCount++
		}
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, identity string, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	items, total, err := s.repo.ListAccessibleTo(ctx, identity, page, pageSize)
	if err != nil {
		return Page{}, err
	}
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Page{Items: items, Total: total, Page: page, PageSize: pageSize, Pages: pages}, nil
}

// Search prefers the search index and falls back to the store's text
// search. Every hit is re-checked against the access policy.
func (s *Service) Search(ctx context.Context, query, identity string, limit int) ([]document.Document, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, apperr.InvalidArgument("Search query is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var found []document.Document
	if s.opts.Searcher != nil {
		ids, err := s.opts.Searcher.SearchIDs(ctx, q, identity, limit)
		if err == nil {
			found, err = s.loadAll(ctx, ids)
		}
		if err != nil {
			logger.Warnf("documents: index search failed, using store: %v", err)
			found = nil
		} else if found == nil {
			found = []document.Document{}
		}
	}
	if found == nil {
		var err error
		found, err = s.repo.FullTextSearch(ctx, q, identity, limit)
		if err != nil {
			return nil, err
		}
	}
	out := make([]document.Document, 0, len(found))
	for _, d := range found {
		if document.HasReadAccess(d, identity) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) loadAll(ctx context.Context, ids []string) ([]document.Document, error) {
	out := make([]document.Document, 0, len(ids))
	for _, id := range ids {
		d, err := s.repo.Load(ctx, id)
		if apperr.IsKind(err, apperr.KindNotFound) {
			// index lags behind a delete
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Update applies a partial update and returns the stored document with the
// list of changes made.
func (s *Service) Update(ctx context.Context, id string, cmd document.UpdateCommand, requester string) (document.Document, []string, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return document.Document{}, nil, err
	}
	next, changes, err := document.ApplyUpdate(d, cmd, requester, s.opts.Now())
	if err != nil {
		return document.Document{}, nil, err
	}
	saved, err := s.repo.Save(ctx, next)
	if err != nil {
		return document.Document{}, nil, err
	}
	if saved.CurrentVersion > d.CurrentVersion {
		metrics.VersionsCreated.Inc()
	}
	s.index(saved)
	s.notify(saved, realtime.TypeSaved, changes)
	if d.IsPublic && !saved.IsPublic {
		s.restrict(saved)
	}
	return saved, changes, nil
}

// Delete removes a document. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, id, requester string) error {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return err
	}
	if !document.IsOwner(d, requester) {
		return document.ErrDeleteDenied
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.opts.Indexer != nil {
		if err := s.opts.Indexer.DeleteDocument(id); err != nil {
			logger.Warnf("documents: unindex %s: %v", id, err)
		}
	}
	s.notify(d, realtime.TypeDeleted, nil)
	return nil
}

// Share grants the account registered under email access to the document.
func (s *Service) Share(ctx context.Context, id, email string, perm document.Permission, requester string) (document.Document, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return document.Document{}, err
	}
	if !document.IsOwner(d, requester) {
		return document.Document{}, document.ErrShareDenied
	}
	if s.opts.Users == nil {
		return document.Document{}, apperr.Unavailable("user directory unavailable")
	}
	u, err := s.opts.Users.FindByEmail(ctx, email)
	if err != nil {
		return document.Document{}, err
	}
	next, err := document.Grant(d, u.ID, perm, requester, s.opts.Now())
	if err != nil {
		return document.Document{}, err
	}
	return s.saveSharing(ctx, next)
}

// Unshare revokes userID's grant. Revoking a non-collaborator succeeds.
func (s *Service) Unshare(ctx context.Context, id, userID, requester string) (document.Document, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return document.Document{}, err
	}
	next, err := document.Revoke(d, userID, requester)
	if err != nil {
		return document.Document{}, err
	}
	saved, err := s.saveSharing(ctx, next)
	if err != nil {
		return document.Document{}, err
	}
	if !saved.IsPublic {
		s.restrict(saved)
	}
	return saved, nil
}

func (s *Service) saveSharing(ctx context.Context, d document.Document) (document.Document, error) {
	saved, err := s.repo.Save(ctx, d)
	if err != nil {
		return document.Document{}, err
	}
	s.index(saved)
	return saved, nil
}

func (s *Service) Versions(ctx context.Context, id, identity string) (VersionList, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return VersionList{}, err
	}
	if !document.HasReadAccess(d, identity) {
		return VersionList{}, document.ErrAccessDenied
	}
	out := make([]document.Version, len(d.Versions))
	for i, v := range d.Versions {
		out[len(d.Versions)-1-i] = v
	}
	return VersionList{Versions: out, CurrentVersion: d.CurrentVersion}, nil
}

// Restore makes an earlier snapshot the live content as a new version.
func (s *Service) Restore(ctx context.Context, id, versionRef, requester string, expectedVersion *int) (document.Document, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return document.Document{}, err
	}
	if expectedVersion != nil && *expectedVersion != d.CurrentVersion {
		return document.Document{}, document.ErrStaleVersion
	}
	next, err := document.RestoreVersion(d, versionRef, requester, s.opts.Now())
	if err != nil {
		return document.Document{}, err
	}
	saved, err := s.repo.Save(ctx, next)
	if err != nil {
		return document.Document{}, err
	}
	metrics.VersionsCreated.Inc()
	s.index(saved)
	s.notify(saved, realtime.TypeSaved, []string{saved.Versions[len(saved.Versions)-1].Changes})
	return saved, nil
}

// Export uploads the live content to object storage and returns a
// time-limited download URL.
func (s *Service) Export(ctx context.Context, id, identity string) (Export, error) {
	if s.opts.Exporter == nil {
		return Export{}, apperr.Unavailable("export storage not configured")
	}
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Export{}, err
	}
	if !document.HasReadAccess(d, identity) {
		return Export{}, document.ErrAccessDenied
	}
	key := storage.ExportKey(d.ID, d.CurrentVersion)
	body := []byte(d.Content)
	if err := s.opts.Exporter.UploadFile(ctx, key, bytes.NewReader(body), int64(len(body)), "text/markdown; charset=utf-8"); err != nil {
		return Export{}, err
	}
	url, err := s.opts.Exporter.GetPresignedURL(ctx, key, storage.ExportFilename(d.Title, d.CurrentVersion), s.opts.ExportExpiry)
	if err != nil {
		return Export{}, err
	}
	return Export{URL: url, Key: key, Version: d.CurrentVersion, ExpiresAt: s.opts.Now().Add(s.opts.ExportExpiry)}, nil
}

// DownloadExport opens an earlier export of version for clients that cannot
// reach object storage directly. The caller closes the returned body.
func (s *Service) DownloadExport(ctx context.Context, id string, version int, identity string) (io.ReadCloser, string, error) {
	if s.opts.Exporter == nil {
		return nil, "", apperr.Unavailable("export storage not configured")
	}
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !document.HasReadAccess(d, identity) {
		return nil, "", document.ErrAccessDenied
	}
	if version < 1 || version > d.CurrentVersion {
		return nil, "", apperr.NotFound("version %d not found", version)
	}
	body, err := s.opts.Exporter.DownloadFile(ctx, storage.ExportKey(d.ID, version))
	if err != nil {
		return nil, "", err
	}
	return body, storage.ExportFilename(d.Title, version), nil
}

// Authorize checks realtime access: read to join a document, write to
// publish changes to it.
func (s *Service) Authorize(ctx context.Context, id, identity string, write bool) error {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return err
	}
	if write {
		if !document.HasWriteAccess(d, identity) {
			return document.ErrEditDenied
		}
		return nil
	}
	if !document.HasReadAccess(d, identity) {
		return document.ErrAccessDenied
	}
	return nil
}

func (s *Service) index(d document.Document) {
	if s.opts.Indexer == nil {
		return
	}
	if err := s.opts.Indexer.IndexDocument(d); err != nil {
		logger.Warnf("documents: index %s: %v", d.ID, err)
	}
}

type savedEvent struct {
	DocumentID     string   `json:"documentId"`
	Title          string   `json:"title"`
	CurrentVersion int      `json:"currentVersion"`
	LastModifiedBy string   `json:"lastModifiedBy"`
	Changes        []string `json:"changes,omitempty"`
}

// restrict removes live viewers of d who can no longer read it.
func (s *Service) restrict(d document.Document) {
	if s.opts.Notifier == nil {
		return
	}
	readers := make([]string, 0, len(d.Collaborators)+1)
	readers = append(readers, d.Author)
	for _, c := range d.Collaborators {
		readers = append(readers, c.User)
	}
	if n := s.opts.Notifier.Publish(d.ID, "", realtime.RestrictMessage(d.ID, readers)); n > 0 {
		logger.Infof("documents: evicted %d realtime viewers from %s", n, d.ID)
	}
}

func (s *Service) notify(d document.Document, typ string, changes []string) {
	if s.opts.Notifier == nil {
		return
	}
	payload, err := json.Marshal(savedEvent{
		DocumentID:     d.ID,
		Title:          d.Title,
		CurrentVersion: d.CurrentVersion,
		LastModifiedBy: d.LastModifiedBy,
		Changes:        changes,
	})
	if err != nil {
		logger.Errorf("documents: encode %s event: %v", typ, err)
		return
	}
	s.opts.Notifier.Publish(d.ID, "", realtime.Message{Type: typ, DocumentID: d.ID, Payload: payload})
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements the Document Store on a MongoDB collection. Versions
// and collaborators are embedded in the document record.
type MongoRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "content", Value: "text"}}},
		{Keys: bson.D{{Key: "author", Value: 1}}},
		{Keys: bson.D{{Key: "collaborators.user", Value: 1}}},
		{Keys: bson.D{{Key: "lastModified", Value: -1}}},
	}
	if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
		logger.Warnf("documents: ensure indexes: %v", err)
	}
	return &MongoRepo{col: col, now: time.Now}
}

// accessFilter mirrors document.HasReadAccess as a query.
func accessFilter(identity string) bson.M {
	if identity == "" {
		return bson.M{"isPublic": true}
	}
	return bson.M{"$or": bson.A{
		bson.M{"author": identity},
		bson.M{"isPublic": true},
		bson.M{"collaborators.user": identity},
	}}
}

func unavailable(err error) error {
	return apperr.Wrap(apperr.KindUnavailable, err, "document store unavailable")
}

func (m *MongoRepo) Load(ctx context.Context, id string) (document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return document.Document{}, document.ErrNotFound
		}
		return document.Document{}, unavailable(err)
	}
	return d, nil
}

func (m *MongoRepo) Insert(ctx context.Context, doc document.Document) (document.Document, error) {
	if doc.ID == "" {
		doc.ID = document.NewID()
	}
	now := m.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Revision = 1
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return document.Document{}, ErrConcurrentUpdate
		}
		return document.Document{}, unavailable(err)
	}
	return doc, nil
}

func (m *MongoRepo) Save(ctx context.Context, doc document.Document) (document.Document, error) {
	expected := doc.Revision
	doc.Revision++
	doc.UpdatedAt = m.now()
	// accessCount is owned by IncrementAccess; write everything else
	set := bson.M{
		"title":          doc.Title,
		"content":        doc.Content,
		"author":         doc.Author,
		"isPublic":       doc.IsPublic,
		"collaborators":  doc.Collaborators,
		"versions":       doc.Versions,
		"currentVersion": doc.CurrentVersion,
		"tags":           doc.Tags,
		"lastModified":   doc.LastModified,
		"lastModifiedBy": doc.LastModifiedBy,
		"isArchived":     doc.IsArchived,
		"updatedAt":      doc.UpdatedAt,
		"revision":       doc.Revision,
	}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": doc.ID, "revision": expected}, bson.M{"$set": set})
	if err != nil {
		return document.Document{}, unavailable(err)
	}
	if res.MatchedCount == 0 {
		n, err := m.col.CountDocuments(ctx, bson.M{"_id": doc.ID})
		if err != nil {
			return document.Document{}, unavailable(err)
		}
		if n == 0 {
			return document.Document{}, document.ErrNotFound
		}
		return document.Document{}, ErrConcurrentUpdate
	}
	return doc, nil
}

func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return unavailable(err)
	}
	if res.DeletedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) IncrementAccess(ctx context.Context, id string) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"accessCount": 1}})
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) ListAccessibleTo(ctx context.Context, identity string, page, pageSize int) ([]document.Document, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	filter := accessFilter(identity)
	opts := options.Find().
		SetSort(bson.D{{Key: "lastModified", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	out, err := m.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, unavailable(err)
	}
	return out, total, nil
}

func (m *MongoRepo) FullTextSearch(ctx context.Context, query, identity string, limit int) ([]document.Document, error) {
	filter := bson.M{"$and": bson.A{
		bson.M{"$text": bson.M{"$search": query}},
		accessFilter(identity),
	}}
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.find(ctx, filter, opts)
}

func (m *MongoRepo) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]document.Document, error) {
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)
	out := []document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, d)
	}
	if err := cur.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

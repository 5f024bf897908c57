package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/models"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrUserNotFound = apperr.NotFound("user not found")
	ErrEmailTaken   = apperr.InvalidArgument("User already exists with this email")
)

// UserRepository defines persistence operations for users
type UserRepository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
// and ensures the unique email index.
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		logger.Warnf("users: ensure email index: %v", err)
	}
	return &MongoUserRepository{col: col}
}

func (r *MongoUserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.LastActive.IsZero() {
		u.LastActive = now
	}
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "user store unavailable")
	}
	return u, nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "user store unavailable")
	}
	return &u, nil
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": NormalizeEmail(email)})
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	return r.findOne(ctx, bson.M{
		"resetTokenHash":   tokenHash,
		"resetTokenExpiry": bson.M{"$gt": now},
	})
}

func (r *MongoUserRepository) Update(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"name":         u.Name,
		"email":        NormalizeEmail(u.Email),
		"passwordHash": u.PasswordHash,
		"avatar":       u.Avatar,
		"bio":          u.Bio,
		"updatedAt":    u.UpdatedAt,
		"lastActive":   u.LastActive,
	}
	update := bson.M{"$set": set}
	if u.ResetTokenHash == "" {
		update["$unset"] = bson.M{"resetTokenHash": "", "resetTokenExpiry": ""}
	} else {
		set["resetTokenHash"] = u.ResetTokenHash
		set["resetTokenExpiry"] = u.ResetTokenExpiry
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": u.ID}, update)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "user store unavailable")
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{byID: map[string]models.User{}, byEmail: map[string]string{}}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Email = NormalizeEmail(u.Email)
	if _, taken := r.byEmail[u.Email]; taken {
		return nil, ErrEmailTaken
	}
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.LastActive.IsZero() {
		u.LastActive = now
	}
	r.byID[u.ID] = *u
	r.byEmail[u.Email] = u.ID
	out := *u
	return &out, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.ResetTokenHash == tokenHash && u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now) {
			out := u
			return &out, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUserRepository) Update(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	u.Email = NormalizeEmail(u.Email)
	if u.Email != cur.Email {
		if _, taken := r.byEmail[u.Email]; taken {
			return ErrEmailTaken
		}
		delete(r.byEmail, cur.Email)
		r.byEmail[u.Email] = u.ID
	}
	u.UpdatedAt = time.Now().UTC()
	r.byID[u.ID] = *u
	return nil
}

package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository"
)

const usersCollection = "users"

// Repository implements repository.Store on MongoDB.
type Repository struct {
	client *mongo.Client
	users  *mongo.Collection
}

var _ repository.Store = (*Repository)(nil)

type encryptedDoc struct {
	Ciphertext string `bson:"ciphertext"`
	IV         string `bson:"iv"`
	AuthTag    string `bson:"auth_tag"`
}

type userDoc struct {
	ID           string       `bson:"_id"`
	Email        string       `bson:"email"`
	PasswordHash string       `bson:"password_hash"`
	FirstName    string       `bson:"first_name"`
	LastName     string       `bson:"last_name"`
	Phone        string       `bson:"phone"`
	SensitiveID  encryptedDoc `bson:"sensitive_id"`
	CreatedAt    time.Time    `bson:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at"`
}

func toDoc(u *domain.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        u.Phone,
		SensitiveID: encryptedDoc{
			Ciphertext: u.SensitiveID.Ciphertext,
			IV:         u.SensitiveID.IV,
			AuthTag:    u.SensitiveID.AuthTag,
		},
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Phone:        d.Phone,
		SensitiveID: domain.EncryptedField{
			Ciphertext: d.SensitiveID.Ciphertext,
			IV:         d.SensitiveID.IV,
			AuthTag:    d.SensitiveID.AuthTag,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// updateDoc is the $set payload for UpdateUser. The encrypted triple is
// written as one embedded document.
func updateDoc(u *domain.User) bson.M {
	d := toDoc(u)
	return bson.M{
		"first_name":   d.FirstName,
		"last_name":    d.LastName,
		"phone":        d.Phone,
		"sensitive_id": d.SensitiveID,
		"updated_at":   d.UpdatedAt,
	}
}

// Open connects to uri, selects database and ensures the unique email index.
func Open(ctx context.Context, uri, database string) (*Repository, error) {
	if database == "" {
		database = "securelogin"
	}
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	r := &Repository{client: client, users: client.Database(database).Collection(usersCollection)}
	if err := r.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return r, nil
}

// EnsureIndexes creates the unique index on email.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("idx_users_email").SetUnique(true),
	}
	if _, err := r.users.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

// CreateUser inserts a user. A duplicate-key error yields repository.ErrDuplicate.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if _, err := r.users.InsertOne(ctx, toDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user by lowercased email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// UpdateUser sets the mutable fields and the whole encrypted triple.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	res, err := r.users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": updateDoc(user)})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks the primary is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

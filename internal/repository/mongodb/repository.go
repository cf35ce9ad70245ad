package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

const (
	profilesCollection = "profiles"
	reportsCollection  = "analytics_reports"
)

// Repository defines the persistence operations backed by MongoDB.
type Repository interface {
	GetCachedProfile(ctx context.Context, address string) (models.CachedProfile, bool, error)
	SetCachedProfile(ctx context.Context, address string, fields models.CachedProfile) error
	SaveAnalyticsReport(ctx context.Context, report models.AnalyticsReport) error
}

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	dbName string
}

type profileDocument struct {
	Address   string            `bson:"_id"`
	Fields    map[string]string `bson:"fields"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return newRepository(client, dbName), nil
}

func newRepository(client *mongo.Client, dbName string) *MongoDBRepository {
	return &MongoDBRepository{client: client, dbName: dbName}
}

func (r *MongoDBRepository) collection(name string) *mongo.Collection {
	return r.client.Database(r.dbName).Collection(name)
}

// GetCachedProfile returns the cached display fields for address.
func (r *MongoDBRepository) GetCachedProfile(ctx context.Context, address string) (models.CachedProfile, bool, error) {
	var doc profileDocument
	err := r.collection(profilesCollection).FindOne(ctx, bson.M{"_id": address}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached profile: %w", err)
	}
	return models.CachedProfile(doc.Fields).Cacheable(), true, nil
}

// SetCachedProfile upserts fields one by one so keys not in fields survive.
func (r *MongoDBRepository) SetCachedProfile(ctx context.Context, address string, fields models.CachedProfile) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range fields.Cacheable() {
		// Dotted or $-prefixed keys would address nested paths or operators.
		if strings.Contains(k, ".") || strings.HasPrefix(k, "$") {
			continue
		}
		set["fields."+k] = v
	}

	_, err := r.collection(profilesCollection).UpdateOne(ctx,
		bson.M{"_id": address},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cached profile: %w", err)
	}
	return nil
}

// SaveAnalyticsReport archives a daily digest.
func (r *MongoDBRepository) SaveAnalyticsReport(ctx context.Context, report models.AnalyticsReport) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection(reportsCollection).InsertOne(ctx, report); err != nil {
		return fmt.Errorf("failed to insert analytics report: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

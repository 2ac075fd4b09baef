package auditlog

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/devfolio/accountguard/internal/models"
)

// MongoLogs implements Logs on the `inconsistencyLogs` collection.
type MongoLogs struct {
	col *mongo.Collection
}

func NewMongoLogs(col *mongo.Collection) *MongoLogs {
	return &MongoLogs{col: col}
}

func (r *MongoLogs) Append(ctx context.Context, e *models.InconsistencyLogEntry) error {
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *MongoLogs) Get(ctx context.Context, id string) (*models.InconsistencyLogEntry, error) {
	var e models.InconsistencyLogEntry
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *MongoLogs) List(ctx context.Context, f Filter) ([]*models.InconsistencyLogEntry, error) {
	filter := bson.M{}
	if f.Resolved != nil {
		filter["resolved"] = *f.Resolved
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MongoLogs) ByUser(ctx context.Context, userID string) ([]*models.InconsistencyLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	return r.find(ctx, bson.M{"userId": userID}, opts)
}

func (r *MongoLogs) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.InconsistencyLogEntry, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.InconsistencyLogEntry
	for cur.Next(ctx) {
		var e models.InconsistencyLogEntry
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, cur.Err()
}

func (r *MongoLogs) MarkResolved(ctx context.Context, id, by, notes string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"resolved":      true,
		"resolvedBy":    by,
		"resolvedAt":    at,
		"details.notes": notes,
	}}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *MongoLogs) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{
		"resolved":  true,
		"timestamp": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoLogs) CountByType(ctx context.Context) (map[string]int64, int64, error) {
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	byType := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, 0, err
		}
		byType[row.ID] = row.Count
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	unresolved, err := r.col.CountDocuments(ctx, bson.M{"resolved": false})
	if err != nil {
		return nil, 0, err
	}
	return byType, unresolved, nil
}

// MongoDeletedAccounts implements DeletedAccounts on the `deletedAccounts`
// collection.
type MongoDeletedAccounts struct {
	col *mongo.Collection
}

func NewMongoDeletedAccounts(col *mongo.Collection) *MongoDeletedAccounts {
	return &MongoDeletedAccounts{col: col}
}

func (r *MongoDeletedAccounts) Add(ctx context.Context, rec *models.DeletedAccountRecord) error {
	_, err := r.col.InsertOne(ctx, rec)
	return err
}

func (r *MongoDeletedAccounts) ByUser(ctx context.Context, userID string) (*models.DeletedAccountRecord, error) {
	var rec models.DeletedAccountRecord
	if err := r.col.FindOne(ctx, bson.M{"userId": userID}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *MongoDeletedAccounts) List(ctx context.Context, limit int) ([]*models.DeletedAccountRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "deletedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.DeletedAccountRecord
	for cur.Next(ctx) {
		var rec models.DeletedAccountRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}

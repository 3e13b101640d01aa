package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/document"
	"github.com/doctrack/doctrack/internal/feed"
	"github.com/doctrack/doctrack/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores one Mongo document per tracked document, keyed by its
// string id, with the audit log nested as the "log" array.
type MongoRepo struct {
	col *mongo.Collection
}

// NewMongoRepo ensures the collection indexes. referenceNumber is indexed
// but not unique: duplicates are reported by the collision scan instead of
// being refused at write time.
func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "referenceNumber", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create document indexes: %w", err)
	}
	return &MongoRepo{col: col}, nil
}

func (m *MongoRepo) Insert(ctx context.Context, d *document.Document) error {
	c := d.Clone()
	if c.Log == nil {
		c.Log = audit.Log{}
	}
	if _, err := m.col.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

func (m *MongoRepo) Update(ctx context.Context, d *document.Document) error {
	set := bson.M{
		"title":                d.Title,
		"description":          d.Description,
		"remarks":              d.Remarks,
		"summary":              d.Summary,
		"classification":       d.Classification,
		"communicationUrgency": d.Urgency,
		"status":               d.Status,
		"assignedTo":           d.AssignedTo,
		"returnPending":        d.ReturnPending,
		"updatedAt":            d.UpdatedAt,
	}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": d.ID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertLogEntry pushes e onto the document's log unless an entry with the
// same id is already there.
func (m *MongoRepo) InsertLogEntry(ctx context.Context, e audit.Entry) error {
	filter := bson.M{"_id": e.DocumentID, "log.id": bson.M{"$ne": e.ID}}
	res, err := m.col.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"log": e}})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := m.col.CountDocuments(ctx, bson.M{"_id": e.DocumentID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) List(ctx context.Context) ([]*document.Document, error) {
	cur, err := m.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) ReferenceNumbers(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"referenceNumber": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().SetProjection(bson.M{"referenceNumber": 1})
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []string
	for cur.Next(ctx) {
		var row struct {
			ReferenceNumber string `bson:"referenceNumber"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.ReferenceNumber)
	}
	return out, cur.Err()
}

type changeEvent struct {
	OperationType string             `bson:"operationType"`
	FullDocument  *document.Document `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// Watch follows the collection's change stream and hands each change to
// fn as a feed event until ctx is cancelled. Requires a replica set.
func (m *MongoRepo) Watch(ctx context.Context, fn func(feed.Event)) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := m.col.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	defer cs.Close(context.Background())
	for cs.Next(ctx) {
		var ch changeEvent
		if err := cs.Decode(&ch); err != nil {
			logger.Warnf("change stream: undecodable event: %v", err)
			continue
		}
		var ev feed.Event
		switch ch.OperationType {
		case "insert":
			ev, err = feed.DocumentEvent(feed.EventInsert, ch.FullDocument)
		case "update", "replace":
			if ch.FullDocument == nil {
				continue
			}
			ev, err = feed.DocumentEvent(feed.EventUpdate, ch.FullDocument)
		case "delete":
			ev, err = feed.DocumentEvent(feed.EventDelete, &document.Document{ID: ch.DocumentKey.ID})
		default:
			continue
		}
		if err != nil {
			logger.Warnf("change stream: %v", err)
			continue
		}
		fn(ev)
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
)

// Storage is a MongoDB-backed implementation of the storage gateway
type Storage struct {
	client       *mongo.Client
	rooms        *mongo.Collection
	participants *mongo.Collection
	results      *mongo.Collection
}

// New connects to MongoDB and ensures the collection indexes exist
func New(ctx context.Context, cfg Config) (*Storage, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s := NewWithClient(client, cfg.Database)
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// NewWithClient creates a MongoDB storage over an existing client (for testing)
func NewWithClient(client *mongo.Client, database string) *Storage {
	db := client.Database(database)
	return &Storage{
		client:       client,
		rooms:        db.Collection(roomsCollection),
		participants: db.Collection(participantsCollection),
		results:      db.Collection(resultsCollection),
	}
}

// Close disconnects the client
func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ensure Storage implements the interface
var _ storage.Gateway = (*Storage)(nil)

// ensureIndexes makes (room_code, user_id) unique for child rows
func (s *Storage) ensureIndexes(ctx context.Context) error {
	unique := mongo.IndexModel{
		Keys:    bson.D{{Key: "room_code", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.participants.Indexes().CreateOne(ctx, unique); err != nil {
		return err
	}
	if _, err := s.results.Indexes().CreateOne(ctx, unique); err != nil {
		return err
	}
	_, err := s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "is_public", Value: 1}},
	})
	return err
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	_, err := s.rooms.InsertOne(ctx, roomToDoc(room))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrRoomExists
		}
		return storage.Wrap(err)
	}
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	var doc roomDoc
	err := s.rooms.FindOne(ctx, bson.M{"_id": string(code)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrRoomNotFound
		}
		return nil, storage.Wrap(err)
	}
	return doc.toModel(), nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	n, err := s.rooms.CountDocuments(ctx, bson.M{"_id": string(code)}, options.Count().SetLimit(1))
	if err != nil {
		return false, storage.Wrap(err)
	}
	return n > 0, nil
}

func (s *Storage) ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.PublicOnly {
		query["is_public"] = true
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.rooms.Find(ctx, query, opts)
	if err != nil {
		return nil, storage.Wrap(err)
	}

	var docs []roomDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storage.Wrap(err)
	}

	rooms := make([]*model.Room, 0, len(docs))
	for _, d := range docs {
		rooms = append(rooms, d.toModel())
	}
	return rooms, nil
}

func (s *Storage) SetRoomStatus(ctx context.Context, code model.RoomCode, status model.RoomStatus, at time.Time) error {
	prev, ok := status.Predecessor()
	if !ok {
		if _, err := s.GetRoom(ctx, code); err != nil {
			return err
		}
		return model.ErrInvalidTransition
	}

	set := bson.M{"status": string(status)}
	switch status {
	case model.RoomStatusInProgress:
		set["started_at"] = at
	case model.RoomStatusCompleted:
		set["completed_at"] = at
	}

	// Filtering on the previous status makes this a compare-and-set
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": string(code), "status": string(prev)},
		bson.M{"$set": set},
	)
	if err != nil {
		return storage.Wrap(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	exists, err := s.RoomExists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrRoomNotFound
	}
	return model.ErrInvalidTransition
}

func (s *Storage) SetResultsPublished(ctx context.Context, code model.RoomCode, published bool) error {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": string(code)},
		bson.M{"$set": bson.M{"results_published": published}},
	)
	if err != nil {
		return storage.Wrap(err)
	}
	if res.MatchedCount == 0 {
		return model.ErrRoomNotFound
	}
	return nil
}

// Participant operations

func (s *Storage) UpsertParticipant(ctx context.Context, code model.RoomCode, p model.Participant) error {
	if err := s.requireRoom(ctx, code); err != nil {
		return err
	}

	filter := bson.M{"room_code": string(code), "user_id": string(p.UserID)}
	update := bson.M{
		"$set": bson.M{
			"name":    p.Name,
			"email":   p.Email,
			"is_host": p.IsHost,
		},
		"$setOnInsert": bson.M{"joined_at": p.JoinedAt},
	}
	return s.upsert(ctx, s.participants, filter, update)
}

func (s *Storage) GetParticipants(ctx context.Context, code model.RoomCode) ([]model.Participant, error) {
	if err := s.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "user_id", Value: 1}})
	cursor, err := s.participants.Find(ctx, bson.M{"room_code": string(code)}, opts)
	if err != nil {
		return nil, storage.Wrap(err)
	}

	var docs []participantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storage.Wrap(err)
	}

	members := make([]model.Participant, 0, len(docs))
	for _, d := range docs {
		members = append(members, d.toModel())
	}
	return members, nil
}

// Result operations

// UpsertResult merges with an update pipeline: the first stage sets the
// reported fields and defaults the rest on insert, the second recomputes the
// score from the merged document.
func (s *Storage) UpsertResult(ctx context.Context, code model.RoomCode, userID model.UserID, u model.ResultUpdate, at time.Time) (*model.Result, error) {
	if err := s.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	fields := bson.M{"updated_at": at}
	mergeField(fields, "wpm", u.WPM, 0.0)
	mergeField(fields, "accuracy", u.Accuracy, 0.0)
	mergeField(fields, "errors", u.Errors, 0)
	mergeField(fields, "time_taken", u.TimeTaken, 0)
	mergeField(fields, "level", u.Level, "")
	mergeField(fields, "progress", u.Progress, 0.0)
	mergeField(fields, "finished", u.Finished, false)

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: fields}},
		{{Key: "$set", Value: bson.M{
			"score": bson.M{"$divide": bson.A{bson.M{"$multiply": bson.A{"$wpm", "$accuracy"}}, 100}},
		}}},
	}

	filter := bson.M{"room_code": string(code), "user_id": string(userID)}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc resultDoc
	err := s.results.FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = s.results.FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&doc)
	}
	if err != nil {
		return nil, storage.Wrap(err)
	}
	merged := doc.toModel()
	return &merged, nil
}

// mergeField sets key to the reported value, or keeps the stored value and
// falls back to def when the document is new
func mergeField[T any](fields bson.M, key string, v *T, def T) {
	if v != nil {
		fields[key] = bson.M{"$literal": *v}
		return
	}
	fields[key] = bson.M{"$ifNull": bson.A{"$" + key, def}}
}

func (s *Storage) GetResults(ctx context.Context, code model.RoomCode) ([]model.Result, error) {
	if err := s.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	cursor, err := s.results.Find(ctx, bson.M{"room_code": string(code)}, opts)
	if err != nil {
		return nil, storage.Wrap(err)
	}

	var docs []resultDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storage.Wrap(err)
	}

	results := make([]model.Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, d.toModel())
	}
	return results, nil
}

// upsert retries once when two concurrent upserts race on the unique index
func (s *Storage) upsert(ctx context.Context, coll *mongo.Collection, filter, update bson.M) error {
	opts := options.Update().SetUpsert(true)
	_, err := coll.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = coll.UpdateOne(ctx, filter, update, opts)
	}
	return storage.Wrap(err)
}

func (s *Storage) requireRoom(ctx context.Context, code model.RoomCode) error {
	exists, err := s.RoomExists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrRoomNotFound
	}
	return nil
}

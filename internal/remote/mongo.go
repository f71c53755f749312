package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"whiteboard/internal/domain"
)

const (
	snapshotsCollection = "board_snapshots"
	opsCollection       = "board_ops"
	countersCollection  = "board_counters"
)

// mongoStore keeps one document per snapshot and one per operation.
// Operation order comes from a per-session counter document.
type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

type snapshotDoc struct {
	SessionID string `bson:"_id"`
	State     string `bson:"state"`
	Version   int64  `bson:"version"`
	OpSeq     int64  `bson:"opSeq"`
	UpdatedAt int64  `bson:"updatedAt"`
}

type opDoc struct {
	SessionID string `bson:"session"`
	Seq       int64  `bson:"seq"`
	OpID      string `bson:"opId"`
	Op        string `bson:"op"`
	CreatedAt int64  `bson:"createdAt"`
}

// mongoURI builds a connection string from conn. A Host that is already a
// mongodb:// or mongodb+srv:// URI is used as-is, with the password
// placeholder Atlas puts in copied strings replaced.
func mongoURI(conn Conn) string {
	if conn.DSN != "" {
		return conn.DSN
	}
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if conn.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", conn.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", conn.Password)
		}
		return uri
	}
	port := conn.Port
	if port == 0 {
		port = 27017
	}
	if conn.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, conn.Password, conn.Host, port)
	}
	return fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
}

// mongoDatabase picks the database name from conn, then from the URI path,
// then falls back to "whiteboard".
func mongoDatabase(conn Conn, uri string) string {
	if conn.Database != "" {
		return conn.Database
	}
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash != -1 {
		name := rest[slash+1:]
		if q := strings.Index(name, "?"); q != -1 {
			name = name[:q]
		}
		if name != "" {
			return name
		}
	}
	return "whiteboard"
}

func openMongo(ctx context.Context, conn Conn) (*mongoStore, error) {
	uri := mongoURI(conn)
	dbName := mongoDatabase(conn, uri)

	logURI := uri
	if conn.Password != "" {
		logURI = strings.ReplaceAll(logURI, conn.Password, "***")
	}
	log.Printf("[SYNC] connecting to mongo %s (db %s)", logURI, dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s := &mongoStore{client: client, db: client.Database(dbName), now: time.Now}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = s.db.Collection(opsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create op index: %w", err)
	}
	return s, nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

func (s *mongoStore) FetchSnapshot(ctx context.Context, sessionID string) (*domain.BoardState, error) {
	var doc snapshotDoc
	err := s.db.Collection(snapshotsCollection).FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &domain.BoardState{SessionID: sessionID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	var state domain.BoardState
	if err := json.Unmarshal([]byte(doc.State), &state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &state, nil
}

func (s *mongoStore) SaveSnapshot(ctx context.Context, sessionID string, state *domain.BoardState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	seq, err := s.currentSeq(ctx, sessionID)
	if err != nil {
		return err
	}
	doc := snapshotDoc{
		SessionID: sessionID,
		State:     string(raw),
		Version:   int64(state.Version),
		OpSeq:     seq,
		UpdatedAt: s.now().UnixMilli(),
	}
	_, err = s.db.Collection(snapshotsCollection).ReplaceOne(ctx,
		bson.M{"_id": sessionID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// SubmitOperations reserves a block of sequence numbers, then inserts the
// operations in order.
func (s *mongoStore) SubmitOperations(ctx context.Context, sessionID string, ops []domain.BoardOperation) error {
	if len(ops) == 0 {
		return nil
	}
	last, err := s.reserve(ctx, sessionID, int64(len(ops)))
	if err != nil {
		return err
	}
	first := last - int64(len(ops)) + 1
	now := s.now().UnixMilli()
	docs := make([]any, len(ops))
	for i, op := range ops {
		raw, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("encode operation %s: %w", op.ID, err)
		}
		docs[i] = opDoc{SessionID: sessionID, Seq: first + int64(i), OpID: op.ID, Op: string(raw), CreatedAt: now}
	}
	if _, err := s.db.Collection(opsCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert operations: %w", err)
	}
	return nil
}

func (s *mongoStore) Backlog(ctx context.Context, sessionID string) ([]domain.BoardOperation, error) {
	var snap snapshotDoc
	err := s.db.Collection(snapshotsCollection).FindOne(ctx, bson.M{"_id": sessionID},
		options.FindOne().SetProjection(bson.M{"opSeq": 1})).Decode(&snap)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("fetch snapshot seq: %w", err)
	}

	cursor, err := s.db.Collection(opsCollection).Find(ctx,
		bson.M{"session": sessionID, "seq": bson.M{"$gt": snap.OpSeq}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query backlog: %w", err)
	}
	var docs []opDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	raws := make([]string, len(docs))
	for i, d := range docs {
		raws[i] = d.Op
	}
	return decodeOps(raws)
}

func (s *mongoStore) reserve(ctx context.Context, sessionID string, n int64) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$inc": bson.M{"seq": n}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("reserve op seq: %w", err)
	}
	return counter.Seq, nil
}

func (s *mongoStore) currentSeq(ctx context.Context, sessionID string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(countersCollection).FindOne(ctx, bson.M{"_id": sessionID}).Decode(&counter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read op seq: %w", err)
	}
	return counter.Seq, nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"marketplace/internal/models"
)

const (
	CollectionProducts  = collProducts
	CollectionOrders    = collOrders
	CollectionChats     = collChats
	CollectionOrderLogs = "orderLogs"
	CollectionUsers     = "users"
)

// Mongo runs transactions as MongoDB multi-document transactions with
// snapshot reads. Every staged write is additionally guarded by the version
// observed at read time, and the driver's WithTransaction retries attempts
// that fail with a transient write conflict.
type Mongo struct {
	db  *mongo.Database
	now func() time.Time
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *Mongo) RunTransaction(ctx context.Context, fn TxFunc) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		tx := &mongoTx{
			s:       s,
			reads:   make(map[docKey]int64),
			missing: make(map[docKey]bool),
		}
		if err := fn(sessCtx, tx); err != nil {
			return nil, err
		}
		return nil, tx.flush(sessCtx)
	}, txnOpts)
	return translateTxError(err)
}

func translateTxError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		return err
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%v: %w", err, ErrConflict)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%v: %w", err, ErrConflict)
	}
	return err
}

func (s *Mongo) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	err := s.db.Collection(CollectionUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Mongo) GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var o models.Order
	err := s.db.Collection(CollectionOrders).FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, ErrNotFound
	}
	return o, err
}

func (s *Mongo) GetChat(ctx context.Context, id primitive.ObjectID) (models.Chat, error) {
	var c models.Chat
	err := s.db.Collection(CollectionChats).FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, ErrNotFound
	}
	return c, err
}

func (s *Mongo) ListOrders(ctx context.Context, filter OrderFilter, page, limit int64) ([]models.Order, int64, error) {
	query := bson.M{}
	if filter.BuyerID != nil {
		query["buyerId"] = *filter.BuyerID
	}
	if filter.SellerID != nil {
		query["sellerId"] = *filter.SellerID
	}

	coll := s.db.Collection(CollectionOrders)
	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	skip, ok := pageOffset(page, limit)
	if !ok {
		return []models.Order{}, total, nil
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return orders, total, nil
}

func (s *Mongo) AppendLog(ctx context.Context, entry models.OrderLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := s.db.Collection(CollectionOrderLogs).InsertOne(ctx, entry)
	return err
}

func (s *Mongo) ListLogs(ctx context.Context, orderID primitive.ObjectID) ([]models.OrderLog, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(CollectionOrderLogs).Find(ctx, bson.M{"orderId": orderID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find order logs: %w", err)
	}
	defer cursor.Close(ctx)

	logs := make([]models.OrderLog, 0)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("decode order logs: %w", err)
	}
	return logs, nil
}

func (s *Mongo) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.db.Client().Ping(checkCtx, readpref.Primary())
}

type mongoTx struct {
	s       *Mongo
	reads   map[docKey]int64
	missing map[docKey]bool
	writes  []func(ctx context.Context) error
}

func (tx *mongoTx) findOne(ctx context.Context, key docKey, out interface{}) error {
	if len(tx.writes) > 0 {
		return ErrReadAfterWrite
	}
	if tx.missing[key] {
		return fmt.Errorf("%s %s: %w", key.coll, key.id.Hex(), ErrNotFound)
	}
	err := tx.s.db.Collection(key.coll).FindOne(ctx, bson.M{"_id": key.id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		tx.missing[key] = true
		return fmt.Errorf("%s %s: %w", key.coll, key.id.Hex(), ErrNotFound)
	}
	return err
}

func (tx *mongoTx) GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var p models.Product
	key := docKey{collProducts, id}
	if err := tx.findOne(ctx, key, &p); err != nil {
		return models.Product{}, err
	}
	tx.reads[key] = p.Version
	return p, nil
}

func (tx *mongoTx) GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var o models.Order
	key := docKey{collOrders, id}
	if err := tx.findOne(ctx, key, &o); err != nil {
		return models.Order{}, err
	}
	tx.reads[key] = o.Version
	return o, nil
}

func (tx *mongoTx) GetChat(ctx context.Context, id primitive.ObjectID) (models.Chat, error) {
	var c models.Chat
	key := docKey{collChats, id}
	if err := tx.findOne(ctx, key, &c); err != nil {
		return models.Chat{}, err
	}
	tx.reads[key] = c.Version
	return c, nil
}

func (tx *mongoTx) readVersion(key docKey) (int64, error) {
	version, ok := tx.reads[key]
	if !ok {
		return 0, fmt.Errorf("%s %s: %w", key.coll, key.id.Hex(), ErrUnreadWrite)
	}
	return version, nil
}

// versionFilter also matches documents written before versioning, which
// have no version field at all.
func versionFilter(id primitive.ObjectID, version int64) bson.M {
	if version == 0 {
		return bson.M{"_id": id, "version": bson.M{"$in": bson.A{int64(0), nil}}}
	}
	return bson.M{"_id": id, "version": version}
}

func (tx *mongoTx) SetProductStock(_ context.Context, id primitive.ObjectID, stock int) error {
	key := docKey{collProducts, id}
	version, err := tx.readVersion(key)
	if err != nil {
		return err
	}
	tx.writes = append(tx.writes, func(ctx context.Context) error {
		res, err := tx.s.db.Collection(collProducts).UpdateOne(ctx, versionFilter(id, version), bson.M{
			"$set": bson.M{"stock": stock, "updatedAt": tx.s.now()},
			"$inc": bson.M{"version": 1},
		})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("product %s changed since read: %w", id.Hex(), ErrConflict)
		}
		return nil
	})
	return nil
}

func (tx *mongoTx) CreateOrder(_ context.Context, order models.Order) error {
	if order.ID.IsZero() {
		return errors.New("order id is required")
	}
	order.Version = 1
	tx.writes = append(tx.writes, func(ctx context.Context) error {
		_, err := tx.s.db.Collection(collOrders).InsertOne(ctx, order)
		return err
	})
	return nil
}

func (tx *mongoTx) UpdateOrder(_ context.Context, order models.Order) error {
	key := docKey{collOrders, order.ID}
	version, err := tx.readVersion(key)
	if err != nil {
		return err
	}
	order.Version = version + 1
	tx.writes = append(tx.writes, func(ctx context.Context) error {
		res, err := tx.s.db.Collection(collOrders).ReplaceOne(ctx, versionFilter(order.ID, version), order)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("order %s changed since read: %w", order.ID.Hex(), ErrConflict)
		}
		return nil
	})
	return nil
}

func (tx *mongoTx) LinkChatOrder(_ context.Context, chatID, orderID primitive.ObjectID, currentProductID *primitive.ObjectID) error {
	key := docKey{collChats, chatID}
	version, err := tx.readVersion(key)
	if err != nil {
		return err
	}
	set := bson.M{"orderId": orderID, "updatedAt": tx.s.now()}
	if currentProductID != nil {
		set["currentProductId"] = *currentProductID
	}
	tx.writes = append(tx.writes, func(ctx context.Context) error {
		res, err := tx.s.db.Collection(collChats).UpdateOne(ctx, versionFilter(chatID, version), bson.M{
			"$set": set,
			"$inc": bson.M{"version": 1},
		})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("chat %s changed since read: %w", chatID.Hex(), ErrConflict)
		}
		return nil
	})
	return nil
}

func (tx *mongoTx) flush(ctx context.Context) error {
	for _, write := range tx.writes {
		if err := write(ctx); err != nil {
			return err
		}
	}
	return nil
}

package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace/internal/store"
)

func EnsureProductIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(store.CollectionProducts).Indexes()

	sellerIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "sellerId", Value: 1}, {Key: "status", Value: 1}},
		Options: options.Index().SetName("sellerId_status_index"),
	}

	log.Println("EnsureProductIndexes: creating sellerId_status_index index")
	_, err := indexes.CreateOne(ctx, sellerIndex)
	if err != nil {
		log.Println("EnsureProductIndexes: sellerId index error:", err)
		return err
	}
	log.Println("EnsureProductIndexes: sellerId_status_index index created")
	return nil
}

func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(store.CollectionOrders).Indexes()

	orderIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "buyerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("buyerId_createdAt_index"),
		},
		{
			Keys:    bson.D{{Key: "sellerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("sellerId_createdAt_index"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("createdAt_index"),
		},
	}

	log.Println("EnsureOrderIndexes: creating buyer, seller and createdAt indexes")
	_, err := indexes.CreateMany(ctx, orderIndexes)
	if err != nil {
		log.Println("EnsureOrderIndexes: index error:", err)
		return err
	}
	log.Println("EnsureOrderIndexes: order indexes created")
	return nil
}

func EnsureOrderLogIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(store.CollectionOrderLogs).Indexes()

	orderIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "orderId", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetName("orderId_timestamp_index"),
	}

	log.Println("EnsureOrderLogIndexes: creating orderId_timestamp_index index")
	_, err := indexes.CreateOne(ctx, orderIndex)
	if err != nil {
		log.Println("EnsureOrderLogIndexes: orderId index error:", err)
		return err
	}
	log.Println("EnsureOrderLogIndexes: orderId_timestamp_index index created")
	return nil
}

func EnsureChatIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(store.CollectionChats).Indexes()

	pairIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "buyerId", Value: 1}, {Key: "sellerId", Value: 1}},
		Options: options.Index().SetName("buyerId_sellerId_index"),
	}

	log.Println("EnsureChatIndexes: creating buyerId_sellerId_index index")
	_, err := indexes.CreateOne(ctx, pairIndex)
	if err != nil {
		log.Println("EnsureChatIndexes: pair index error:", err)
		return err
	}
	log.Println("EnsureChatIndexes: buyerId_sellerId_index index created")
	return nil
}

// EnsureIndexes runs every index bootstrap and returns the first failure.
func EnsureIndexes(db *mongo.Database) error {
	for _, ensure := range []func(*mongo.Database) error{
		EnsureProductIndexes,
		EnsureOrderIndexes,
		EnsureOrderLogIndexes,
		EnsureChatIndexes,
	} {
		if err := ensure(db); err != nil {
			return err
		}
	}
	return nil
}

package interaction

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DocumentWriter 单文档插入
type DocumentWriter interface {
	InsertDocument(ctx context.Context, doc any) error
}

type collectionWriter struct {
	coll *mongo.Collection
}

func (w collectionWriter) InsertDocument(ctx context.Context, doc any) error {
	_, err := w.coll.InsertOne(ctx, doc)
	return err
}

// MongoSink 写入 MongoDB 集合
type MongoSink struct {
	w DocumentWriter
}

// NewMongoSink 创建 mongo sink
func NewMongoSink(w DocumentWriter) *MongoSink {
	return &MongoSink{w: w}
}

// Append 实现 Sink
func (s *MongoSink) Append(ctx context.Context, e Entry) error {
	if err := s.w.InsertDocument(ctx, e); err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// ConnectMongo 连接 MongoDB 并返回指定集合上的 sink 与关闭函数
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoSink, func(context.Context) error, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(collection)
	return NewMongoSink(collectionWriter{coll: coll}), client.Disconnect, nil
}

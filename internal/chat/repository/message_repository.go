package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository durable messages and per recipient read records
type MessageRepository interface {
	EnsureIndexes(ctx context.Context) error
	// Insert store msg with the next seq of its room. when (sender, client message id)
	// already exists the stored message is returned with created=false.
	Insert(ctx context.Context, msg *domain.Message) (stored *domain.Message, created bool, err error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// Update persist content, edited and deleted fields
	Update(ctx context.Context, msg *domain.Message) error
	// ListByRoom newest first
	ListByRoom(ctx context.Context, roomID string, page domain.Page) ([]domain.Message, error)
	Search(ctx context.Context, roomIDs []string, query string, page domain.Page) ([]domain.Message, error)
	// FindInRoom messages among ids that belong to roomID
	FindInRoom(ctx context.Context, roomID string, ids []string) ([]domain.Message, error)
	LatestSeq(ctx context.Context, roomID string) (int64, error)
	// CountUnread non deleted messages after afterSeq not sent by userID
	CountUnread(ctx context.Context, roomID, userID string, afterSeq int64) (int64, error)
	// UpsertReadRecords mark msgs delivered, and read when read is true
	UpsertReadRecords(ctx context.Context, userID string, msgs []domain.Message, read bool, at time.Time) error
	RecordsFor(ctx context.Context, messageID string) ([]domain.ReadRecord, error)
	SetDeliveryStatus(ctx context.Context, messageID string, status domain.DeliveryStatus) error
}

// seqInsertAttempts bound on (room_id, seq) races lost to other writers
const seqInsertAttempts = 50

type mongoMessageRepository struct {
	messages *mongo.Collection
	reads    *mongo.Collection
}

// NewMongoMessageRepository create a mongo backed MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{
		messages: db.Collection("chat_messages"),
		reads:    db.Collection("chat_read_records"),
	}
}

func (r *mongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// seq 由唯一索引把關，同房間不會有兩則同序號
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "seq", Value: -1}},
			Options: options.Index().SetUnique(true).SetName("room_seq_unique"),
		},
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "client_message_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"client_message_id": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return err
	}
	_, err = r.reads.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Insert write msg with seq = room max + 1 in a single document write, so a failed
// or duplicate send never consumes a seq. a lost seq race is retried.
func (r *mongoMessageRepository) Insert(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	for attempt := 0; attempt < seqInsertAttempts; attempt++ {
		if existing, err := r.findByClientID(ctx, msg.SenderID, msg.ClientMessageID); err != nil || existing != nil {
			return existing, false, err
		}

		latest, err := r.LatestSeq(ctx, msg.RoomID)
		if err != nil {
			return nil, false, err
		}
		msg.Seq = latest + 1
		if _, err := r.messages.InsertOne(ctx, msg); err == nil {
			return msg, true, nil
		} else if !mongo.IsDuplicateKeyError(err) {
			return nil, false, errprocess.Wrap(errprocess.Internal, "insert message", err)
		}

		// 重複鍵: 同 client id 的原訊息已寫入，或 seq 被別的寫入搶走
		if err := ctx.Err(); err != nil {
			return nil, false, errprocess.Wrap(errprocess.Internal, "insert message", err)
		}
	}
	return nil, false, errprocess.New(errprocess.Conflict, "message seq contention, retry later")
}

// findByClientID nil when clientID is empty or unused
func (r *mongoMessageRepository) findByClientID(ctx context.Context, senderID, clientID string) (*domain.Message, error) {
	if clientID == "" {
		return nil, nil
	}
	var existing domain.Message
	err := r.messages.FindOne(ctx, bson.M{"sender_id": senderID, "client_message_id": clientID}).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "find message by client id", err)
	}
	return &existing, nil
}

func (r *mongoMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		return nil, translateMongo(err, "message")
	}
	return &msg, nil
}

func (r *mongoMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	set := bson.M{
		"content":    msg.Content,
		"edited":     msg.Edited,
		"edited_at":  msg.EditedAt,
		"deleted":    msg.Deleted,
		"deleted_at": msg.DeletedAt,
	}
	update := bson.M{"$set": set}
	if msg.Attachment == nil {
		update["$unset"] = bson.M{"attachment": ""}
	}
	res, err := r.messages.UpdateOne(ctx, bson.M{"_id": msg.ID}, update)
	if err != nil {
		return errprocess.Wrap(errprocess.Internal, "update message", err)
	}
	if res.MatchedCount == 0 {
		return errprocess.New(errprocess.NotFound, "message not found")
	}
	return nil
}

func (r *mongoMessageRepository) ListByRoom(ctx context.Context, roomID string, page domain.Page) ([]domain.Message, error) {
	page = page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))
	return r.find(ctx, bson.M{"room_id": roomID}, opts)
}

func (r *mongoMessageRepository) Search(ctx context.Context, roomIDs []string, query string, page domain.Page) ([]domain.Message, error) {
	if len(roomIDs) == 0 {
		return []domain.Message{}, nil
	}
	page = page.Normalize()
	filter := bson.M{
		"room_id": bson.M{"$in": roomIDs},
		"deleted": false,
		"content": bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))
	return r.find(ctx, filter, opts)
}

func (r *mongoMessageRepository) FindInRoom(ctx context.Context, roomID string, ids []string) ([]domain.Message, error) {
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}, "room_id": roomID}, options.Find())
}

func (r *mongoMessageRepository) LatestSeq(ctx context.Context, roomID string) (int64, error) {
	var latest struct {
		Seq int64 `bson:"seq"`
	}
	err := r.messages.FindOne(ctx, bson.M{"room_id": roomID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}).SetProjection(bson.M{"seq": 1}),
	).Decode(&latest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, errprocess.Wrap(errprocess.Internal, "latest seq", err)
	}
	return latest.Seq, nil
}

func (r *mongoMessageRepository) CountUnread(ctx context.Context, roomID, userID string, afterSeq int64) (int64, error) {
	n, err := r.messages.CountDocuments(ctx, bson.M{
		"room_id":   roomID,
		"seq":       bson.M{"$gt": afterSeq},
		"deleted":   false,
		"sender_id": bson.M{"$ne": userID},
	})
	if err != nil {
		return 0, errprocess.Wrap(errprocess.Internal, "count unread", err)
	}
	return n, nil
}

func (r *mongoMessageRepository) UpsertReadRecords(ctx context.Context, userID string, msgs []domain.Message, read bool, at time.Time) error {
	if len(msgs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(msgs))
	for _, m := range msgs {
		set := bson.M{"delivered": true}
		setOnInsert := bson.M{"room_id": m.RoomID, "seq": m.Seq, "delivered_at": at}
		if read {
			set["read_at"] = at
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"message_id": m.ID, "user_id": userID}).
			SetUpdate(bson.M{"$set": set, "$setOnInsert": setOnInsert}).
			SetUpsert(true))
	}
	if _, err := r.reads.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return errprocess.Wrap(errprocess.Internal, "upsert read records", err)
	}
	return nil
}

func (r *mongoMessageRepository) RecordsFor(ctx context.Context, messageID string) ([]domain.ReadRecord, error) {
	cur, err := r.reads.Find(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "find read records", err)
	}
	var out []domain.ReadRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "decode read records", err)
	}
	return out, nil
}

func (r *mongoMessageRepository) SetDeliveryStatus(ctx context.Context, messageID string, status domain.DeliveryStatus) error {
	_, err := r.messages.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{"$set": bson.M{"delivery_status": status}})
	if err != nil {
		return errprocess.Wrap(errprocess.Internal, "set delivery status", err)
	}
	return nil
}

func (r *mongoMessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Message, error) {
	cur, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "find messages", err)
	}
	out := []domain.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "decode messages", err)
	}
	return out, nil
}

func translateMongo(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errprocess.New(errprocess.NotFound, what+" not found")
	}
	return errprocess.Wrap(errprocess.Internal, what+" storage failure", err)
}

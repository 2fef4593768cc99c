//go:build integration

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/presence"
	"chat_presence_service/internal/chat/ratelimit"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/pkg/database"
	"chat_presence_service/pkg/logger"
	testtool "chat_presence_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// **測試用的容器**
var (
	gormDB      *gorm.DB
	pgPool      *pgxpool.Pool
	mongoDB     *mongo.Database
	redisClient *redis.Client
)

// **TestMain 初始化測試環境**
func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()

	mongoC, err := testtool.StartMongo(ctx)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	pgC, err := testtool.StartPostgres(ctx, "chatdb")
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	redisC, err := testtool.StartRedis(ctx)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	fmt.Printf("✅ mongo=%s redis=%s\n", mongoC.ConnectStr, redisC.ConnectStr)

	conn := func(s string) database.Connection {
		return database.Connection{ConnectStr: s, RetryCount: 5, RetryInterval: time.Second}
	}
	mdb, err := database.NewMongoDB(ctx, conn(mongoC.ConnectStr), "chat_test")
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	mongoDB = mdb.Database
	if gormDB, err = database.NewGormConnection(conn(pgC.ConnectStr)); err != nil {
		log.Fatalf("❌ Failed to connect to PostgreSQL: %v", err)
	}
	if pgPool, err = database.NewDatabaseConnection(conn(pgC.ConnectStr)); err != nil {
		log.Fatalf("❌ Failed to open pgx pool: %v", err)
	}
	if redisClient, err = database.NewRedisStandalone(redisC.ConnectStr, 0); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	if err := repository.NewRoomRepository(gormDB).AutoMigrate(); err != nil {
		log.Fatalf("❌ migrate: %v", err)
	}
	if err := repository.NewMongoMessageRepository(mongoDB).EnsureIndexes(ctx); err != nil {
		log.Fatalf("❌ mongo indexes: %v", err)
	}
	if _, err := pgPool.Exec(ctx, `CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY, owner_id TEXT NOT NULL, title TEXT NOT NULL, deleted_at TIMESTAMPTZ)`); err != nil {
		log.Fatalf("❌ items table: %v", err)
	}

	code := m.Run()

	// **清理測試環境**
	pgPool.Close()
	_ = redisClient.Close()
	_ = mdb.Close(ctx)
	mongoC.Terminate(ctx)
	pgC.Terminate(ctx)
	redisC.Terminate(ctx)
	os.Exit(code)
}

// instance one chat node on the shared stores
type instance struct {
	relay  *presence.Relay
	msgUC  *MessageUseCase
	roomUC *RoomUseCase
	push   *MockPushNotifier
}

func newInstance(t *testing.T, name string) *instance {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rooms := repository.NewRoomRepository(gormDB)
	messages := repository.NewMongoMessageRepository(mongoDB)
	lastSeen := repository.NewRedisLastSeenRepository(
		database.NewRedisRepository[repository.LastSeen](redisClient, "chat:last_seen:"), time.Hour)
	relay := presence.NewRelay(name, presence.NewRegistry(), repository.NewRedisPubSub(redisClient),
		repository.NewRedisOnlineRepository(redisClient, time.Minute), lastSeen)
	require.NoError(t, relay.Run(ctx))

	push := new(MockPushNotifier)
	push.On("Notify", mock.Anything, mock.Anything).Return(nil)
	limiter := ratelimit.NewRedisLimiter(redisClient, ratelimit.Settings{Capacity: 100, Refill: 100, Period: time.Minute})
	typing := presence.NewTyping(relay, 5*time.Second)
	typing.ClearWhenOffline(relay.Registry())

	msgUC := NewMessageUseCase(rooms, messages, limiter, relay, typing, push, NewNoopEventPublisher(), nil, time.Minute)
	roomUC := NewRoomUseCase(rooms, repository.NewInvitationRepository(gormDB),
		repository.NewPGItemDirectory(pgPool), messages, msgUC, relay, time.Hour)
	return &instance{relay: relay, msgUC: msgUC, roomUC: roomUC, push: push}
}

func uniq(prefix string) string { return prefix + "-" + uuid.New().String()[:8] }

func TestIntegration_ConcurrentSendSeq(t *testing.T) {
	ctx := context.Background()
	a, b := newInstance(t, uniq("node")), newInstance(t, uniq("node"))
	alice, bob := uniq("alice"), uniq("bob")
	room, err := a.roomUC.CreatePrivate(ctx, alice, bob)
	require.NoError(t, err)

	var wg sync.WaitGroup
	seqs := make(chan int64, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node, sender := a, alice
			if i%2 == 1 {
				node, sender = b, bob
			}
			m, err := node.msgUC.Send(ctx, domain.SendMessage{RoomID: room.ID, SenderID: sender, ClientMessageID: uuid.New().String(), Content: "x"})
			if assert.NoError(t, err) {
				seqs <- m.Seq
			}
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := map[int64]bool{}
	for s := range seqs {
		seen[s] = true
	}
	require.Len(t, seen, 40)
	for s := int64(1); s <= 40; s++ {
		assert.True(t, seen[s], "seq %d missing", s)
	}
}

func TestIntegration_DuplicateClientID(t *testing.T) {
	ctx := context.Background()
	node := newInstance(t, uniq("node"))
	alice, bob := uniq("alice"), uniq("bob")
	room, err := node.roomUC.CreatePrivate(ctx, alice, bob)
	require.NoError(t, err)

	in := domain.SendMessage{RoomID: room.ID, SenderID: alice, ClientMessageID: "retry-1", Content: "hi"}
	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := node.msgUC.Send(ctx, in)
			if assert.NoError(t, err) {
				ids[i] = m.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	seq, err := repository.NewMongoMessageRepository(mongoDB).LatestSeq(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestIntegration_RetriesDoNotLeaveSeqGaps(t *testing.T) {
	ctx := context.Background()
	a, b := newInstance(t, uniq("node")), newInstance(t, uniq("node"))
	alice, bob := uniq("alice"), uniq("bob")
	room, err := a.roomUC.CreatePrivate(ctx, alice, bob)
	require.NoError(t, err)

	// 每個 client id 從兩個節點各送三次，和新訊息交錯
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		in := domain.SendMessage{RoomID: room.ID, SenderID: alice, ClientMessageID: uuid.New().String(), Content: "retry"}
		for j := 0; j < 6; j++ {
			node := a
			if j%2 == 1 {
				node = b
			}
			wg.Add(1)
			go func(node *instance) {
				defer wg.Done()
				_, err := node.msgUC.Send(ctx, in)
				assert.NoError(t, err)
			}(node)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.msgUC.Send(ctx, domain.SendMessage{RoomID: room.ID, SenderID: bob, ClientMessageID: uuid.New().String(), Content: "fresh"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := repository.NewMongoMessageRepository(mongoDB).ListByRoom(ctx, room.ID, domain.Page{Size: 100})
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i, m := range msgs {
		assert.Equal(t, int64(20-i), m.Seq)
	}
}

func TestIntegration_CrossInstanceFanout(t *testing.T) {
	ctx := context.Background()
	a, b := newInstance(t, uniq("node")), newInstance(t, uniq("node"))
	alice, bob := uniq("alice"), uniq("bob")
	room, err := a.roomUC.CreatePrivate(ctx, alice, bob)
	require.NoError(t, err)

	// bob 連在 b 節點
	tr := &recordingTransport{}
	c := presence.NewConnection(uuid.New().String(), bob, "test", tr, 64)
	roomIDs, err := b.roomUC.ActiveRoomIDs(ctx, bob)
	require.NoError(t, err)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.relay.Connect(connCtx, c, roomIDs)
	defer b.relay.Disconnect(c)
	go c.WritePump(connCtx, time.Hour)

	require.Eventually(t, func() bool { return a.relay.IsOnline(ctx, bob) }, 2*time.Second, 20*time.Millisecond)

	m, err := a.msgUC.Send(ctx, domain.SendMessage{RoomID: room.ID, SenderID: alice, ClientMessageID: "x-1", Content: "across nodes"})
	require.NoError(t, err)

	got := waitEvent(t, tr, domain.EventMessageCreated, 1)
	var delivered domain.Message
	require.NoError(t, json.Unmarshal(got[0].Payload, &delivered))
	assert.Equal(t, m.ID, delivered.ID)
	a.push.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)

	seen, err := b.relay.LastSeen(ctx, bob)
	require.NoError(t, err)
	assert.False(t, seen.IsZero())
}

func TestIntegration_ItemInquiry(t *testing.T) {
	ctx := context.Background()
	node := newInstance(t, uniq("node"))
	itemID, owner, buyer := uniq("item"), uniq("dealer"), uniq("buyer")
	_, err := pgPool.Exec(ctx, `INSERT INTO items (id, owner_id, title) VALUES ($1, $2, $3)`, itemID, owner, "2019 Civic")
	require.NoError(t, err)

	room, err := node.roomUC.CreateItemInquiry(ctx, buyer, itemID, "still available?")
	require.NoError(t, err)
	assert.Equal(t, "2019 Civic", room.Name)

	again, err := node.roomUC.CreateItemInquiry(ctx, buyer, itemID, "still available?")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)

	updated, err := node.roomUC.UpdateInquiryStatus(ctx, room.ID, owner, domain.InquiryInterested)
	require.NoError(t, err)
	assert.Equal(t, 20, updated.LeadScore)
}

func TestIntegration_HealthServer(t *testing.T) {
	hs, err := database.NewHealthServer("127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = hs.Serve() }()
	defer hs.Stop()
	hs.SetServing(true)

	conn, err := database.CreateGRPCClient(hs.Addr(), 3*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

package di

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/goliatone/go-readmodel-cache/config"
	"github.com/goliatone/go-readmodel-cache/internal/cacheinfra"
	"github.com/goliatone/go-readmodel-cache/internal/queue"
	"github.com/goliatone/go-readmodel-cache/pkg/testsupport"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1700000000, 0)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Queue.Workers = 1
	return cfg
}

// newTestContainer builds a container over a freshly seeded platform.
func newTestContainer(t testing.TB, cfg config.Config, opts ...Option) (*Container, clockwork.FakeClock) {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	src := testsupport.SeedPlatform(t, epoch)

	opts = append([]Option{WithDB(src.DB()), WithClock(clock)}, opts...)
	c, err := NewContainer(ctx, cfg, opts...)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(ctx) })
	return c, clock
}

func withMiniredis(t testing.TB, cfg *config.Config) Option {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg.Store.Backend = config.StoreRedis
	cfg.Store.Redis.Addr = mr.Addr()
	return WithRedisClient(client)
}

func TestNewContainer(t *testing.T) {
	c, _ := newTestContainer(t, testConfig())

	if c.Strategy() == nil || c.Store() == nil {
		t.Fatal("container should build a store and a strategy")
	}
	assert.NotNil(t, c.Source())
	assert.NotNil(t, c.Campaigns())
	assert.NotNil(t, c.Organizations())
	assert.NotNil(t, c.Invalidator())
	assert.NotNil(t, c.Dispatcher())
	assert.NotNil(t, c.JobHandler())
	assert.NotNil(t, c.Stats())
	assert.Len(t, c.Warmer().Targets(), 5)

	assert.IsType(t, &cacheinfra.MemoryStore{}, c.Store())
	assert.IsType(t, &queue.MemoryQueue{}, c.Queue())
	assert.Equal(t, config.StoreMemory, c.Config().Store.Backend)
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "memcached"

	_, err := NewContainer(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewContainer_OpensConfiguredDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Database.DSN = ":memory:"

	c, err := NewContainer(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, c.Source().CreateSchema(ctx))

	n, err := c.Source().Campaigns.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, c.Close(ctx))
}

func TestNewContainer_VolatileStoreDisablesRepositories(t *testing.T) {
	c, _ := newTestContainer(t, testConfig())

	assert.False(t, c.Campaigns().IsCachingEnabled())
	assert.True(t, c.Strategy().Enabled())
}

func TestNewContainer_RedisStore(t *testing.T) {
	cfg := testConfig()
	opt := withMiniredis(t, &cfg)
	c, _ := newTestContainer(t, cfg, opt)

	assert.IsType(t, &cacheinfra.RedisStore{}, c.Store())
	assert.True(t, c.Store().Durable())
	assert.True(t, c.Campaigns().IsCachingEnabled())
}

func TestNewContainer_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = config.StoreRedis
	cfg.Store.Redis.Addr = "127.0.0.1:1"
	src := testsupport.SeedPlatform(t, epoch)

	_, err := NewContainer(context.Background(), cfg, WithDB(src.DB()))
	require.Error(t, err)
}

func TestNewContainer_SQLStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = config.StoreSQL
	c, _ := newTestContainer(t, cfg)

	assert.IsType(t, &cacheinfra.SQLStore{}, c.Store())
	assert.True(t, c.Campaigns().IsCachingEnabled())
}

// recordingSQS accepts sends and never delivers.
type recordingSQS struct {
	mu   sync.Mutex
	sent []*sqs.SendMessageInput
}

func (r *recordingSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (r *recordingSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *recordingSQS) DeleteMessage(context.Context, *sqs.DeleteMessageInput, ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, nil
}

func TestNewContainer_SQSQueue(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Backend = config.QueueSQS
	cfg.Queue.SQS.QueueURL = "https://sqs.us-west-2.amazonaws.com/1/invalidations"
	client := &recordingSQS{}
	c, _ := newTestContainer(t, cfg, WithSQSClient(client))

	assert.IsType(t, &queue.SQSQueue{}, c.Queue())

	require.NoError(t, c.Queue().Enqueue(context.Background(), queue.Job{Name: "readmodel.invalidate"}))
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sent, 1)
	assert.Equal(t, cfg.Queue.SQS.QueueURL, *client.sent[0].QueueUrl)
}

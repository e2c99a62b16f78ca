package projector_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db"
	"github.com/innotter/stats/db/drivers/ram"
	"github.com/innotter/stats/domain"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/producer"
	"github.com/innotter/stats/projector"
	"github.com/innotter/stats/watermill"
	"github.com/innotter/stats/watermill/backends/gochannel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	log   logger.Logger
	cfg   *config.Config
	store *db.Store
	logs  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logs := &bytes.Buffer{}
	log, err := logger.New(logger.Configuration{Writer: logs, Level: logger.DEBUG_LEVEL})
	require.NoError(t, err)

	cfg, err := config.New()
	require.NoError(t, err)

	return &fixture{
		log:   log,
		cfg:   cfg,
		store: db.NewWithDriver(ram.New()),
		logs:  logs,
	}
}

func (f *fixture) projector(t *testing.T, client *watermill.Client) *projector.Projector {
	t.Helper()

	p, err := projector.New(f.log, f.cfg, f.store, client, nil, nil)
	require.NoError(t, err)

	return p
}

func envelope(t *testing.T, method domain.Method, body string) domain.Envelope {
	t.Helper()

	env, err := domain.DecodeEnvelope(method.String(), []byte(body))
	require.NoError(t, err)

	return env
}

func TestCreatePageMaterializesOwner(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Apply(ctx, envelope(t, domain.CreatePages, `{
		"id": 41, "owner_id": 1, "name": "news", "followers": 0,
		"owner_username": "admin", "owner_is_blocked": false, "owner_image_path": null
	}`)))

	user, err := f.store.Get(ctx, "users", 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"id": "1", "username": "admin", "is_blocked": "false", "image_path": "",
	}, codec.Decode(user))

	page, err := f.store.Get(ctx, "pages", 41)
	require.NoError(t, err)
	assert.Equal(t, codec.Int(1), page["owner_id"])
	assert.Equal(t, codec.String("admin"), page["owner_username"])
}

func TestCreatePageKeepsExistingOwner(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Apply(ctx, envelope(t, domain.CreateUsers, `{"id": 1, "username": "original"}`)))
	require.NoError(t, p.Apply(ctx, envelope(t, domain.CreatePages, `{"id": 41, "owner_id": 1, "owner_username": "stale"}`)))

	user, err := f.store.Get(ctx, "users", 1)
	require.NoError(t, err)
	assert.Equal(t, codec.String("original"), user["username"])
}

func TestCreatePageWithoutOwner(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)

	err := p.Apply(context.Background(), envelope(t, domain.CreatePages, `{"id": 41, "name": "orphan"}`))
	require.ErrorIs(t, err, projector.ErrMissingOwner)
}

func TestUpdateMergesAfterCreate(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Apply(ctx, envelope(t, domain.CreatePosts, `{"id": 100, "page": 41, "title": "t", "liked_by": 0}`)))
	require.NoError(t, p.Apply(ctx, envelope(t, domain.LikePosts, `{"id": 100, "liked_by": 3}`)))

	post, err := f.store.Get(ctx, "posts", 100)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"id": "100", "page": "41", "title": "t", "liked_by": "3",
	}, codec.Decode(post))
}

func TestUpdateMissingUpserts(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Apply(ctx, envelope(t, domain.UpdatePages, `{"id": 7, "followers": 2}`)))

	page, err := f.store.Get(ctx, "pages", 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "7", "followers": "2"}, codec.Decode(page))
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Apply(ctx, envelope(t, domain.CreatePosts, `{"id": 100, "page": 41}`)))
	require.NoError(t, p.Apply(ctx, envelope(t, domain.DeletePosts, `{"id": 100}`)))
	require.NoError(t, p.Apply(ctx, envelope(t, domain.DeletePosts, `{"id": 100}`)))

	_, err := f.store.Get(ctx, "posts", 100)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestBadFieldDropsWholeEvent(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)
	ctx := context.Background()

	err := p.Apply(ctx, envelope(t, domain.CreatePages, `{"id": 41, "owner_id": 1, "tags": ["a"]}`))
	require.ErrorIs(t, err, codec.ErrInvalidObjectType)

	_, err = f.store.Get(ctx, "pages", 41)
	require.ErrorIs(t, err, db.ErrNotFound)

	_, err = f.store.Get(ctx, "users", 1)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestApplyRejectsMissingID(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)

	err := p.Apply(context.Background(), envelope(t, domain.UpdatePosts, `{"title": "x"}`))
	require.ErrorIs(t, err, domain.ErrMissingID)
}

func TestHandleAutoAcksFailures(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)
	require.Equal(t, projector.AckAuto, p.Mode())

	msg := message.NewMessage("1", []byte(`{"id": 1}`))
	msg.Metadata.Set(domain.MethodMetadataKey, "archive_pages")

	require.NoError(t, p.Handle(msg))
	assert.Contains(t, f.logs.String(), "event dropped")
}

func TestHandleAfterApplyReturnsFailures(t *testing.T) {
	f := newFixture(t)
	t.Setenv("PROJECTOR_ACK_MODE", "after_apply")

	p := f.projector(t, nil)
	require.Equal(t, projector.AckAfterApply, p.Mode())

	msg := message.NewMessage("1", []byte(`not json`))
	msg.Metadata.Set(domain.MethodMetadataKey, domain.CreatePosts.String())

	require.ErrorIs(t, p.Handle(msg), domain.ErrInvalidPayload)
}

func TestNewRejectsUnknownAckMode(t *testing.T) {
	f := newFixture(t)
	t.Setenv("PROJECTOR_ACK_MODE", "manual")

	_, err := projector.New(f.log, f.cfg, f.store, nil, nil, nil)
	require.ErrorIs(t, err, projector.ErrUnknownAckMode)
}

func TestRunWithoutClient(t *testing.T) {
	f := newFixture(t)
	p := f.projector(t, nil)

	require.ErrorIs(t, p.Run(context.Background()), projector.ErrNoClient)
}

func TestPipelineEndToEnd(t *testing.T) {
	f := newFixture(t)

	backend := gochannel.New(f.log, "#", "pages", "posts", "users")
	client, err := watermill.New(f.log, f.cfg, backend, nil, nil,
		watermill.DisableRetry(),
		watermill.DisableCircuitBreaker(),
		watermill.DisableDLQ(),
	)
	require.NoError(t, err)

	p := f.projector(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- p.Run(ctx) }()

	<-client.Running()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, p.Stop())
		require.NoError(t, <-done)
	})

	pub := producer.NewWithPolicy(f.log, client.Publisher, producer.FailClosed)
	owner := domain.User{ID: 1, Username: "admin"}

	require.NoError(t, pub.PublishPage(ctx, domain.OpCreate, domain.Page{ID: 41, Owner: owner, Name: "news"}))
	require.NoError(t, pub.PublishPage(ctx, domain.OpUpdate, domain.Page{ID: 41, Owner: owner, Name: "daily", Followers: 5}))
	require.NoError(t, pub.PublishPost(ctx, domain.OpCreate, domain.Post{ID: 100, PageID: 41, Title: "hello"}))
	require.NoError(t, pub.PublishPost(ctx, domain.OpLike, domain.Post{ID: 100, LikedBy: 3}))

	require.Eventually(t, func() bool {
		post, err := f.store.Get(ctx, "posts", 100)

		return err == nil && post["liked_by"].String() == "3"
	}, 5*time.Second, 10*time.Millisecond)

	page, err := f.store.Get(ctx, "pages", 41)
	require.NoError(t, err)
	assert.Equal(t, "daily", page["name"].String())
	assert.Equal(t, "5", page["followers"].String())
	assert.Equal(t, "admin", page["owner_username"].String())

	user, err := f.store.Get(ctx, "users", 1)
	require.NoError(t, err)
	assert.Equal(t, "admin", user["username"].String())
}

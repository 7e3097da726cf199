/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/embedstore/config"
	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/datastore/mock"
	"github.com/suparena/embedstore/datastore/testmodels"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/executor"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/testutil"
)

// badKey asks for an assigned key on a string column.
type badKey struct {
	Code  string `bun:"code,pk,autoincrement"`
	Label string `bun:"label"`
}

// isolate gives the test its own registry, instances, commit hub and
// executor, with def as the default configuration when non-nil.
func isolate(t *testing.T, def *datastore.Configuration) {
	t.Helper()
	prevConfigs, prevInstances, prevCommits := configs, instances, commits
	configs, instances, commits = NewConfigStore(), NewInstances(), newCommitHub()
	prevExec := SetAsyncExecutor(executor.New(4, executor.WithName(t.Name())))
	if def != nil {
		Init(def)
	}

	t.Cleanup(func() {
		testutil.WaitExecutorIdle(t, AsyncExecutor())
		assert.NoError(t, AsyncExecutor().Shutdown(context.Background()))
		assert.NoError(t, Close())
		configs, instances, commits = prevConfigs, prevInstances, prevCommits
		SetAsyncExecutor(prevExec)
	})
}

func memoryDB(opts ...datastore.Option) *datastore.Configuration {
	return datastore.NewConfiguration(uuid.NewString(), append([]datastore.Option{datastore.InMemory()}, opts...)...)
}

func newRating(system, player string, score float64) *testmodels.Rating {
	return &testmodels.Rating{SystemID: system, Player: player, Score: score}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("NotInitialized", func(t *testing.T) {
		isolate(t, nil)
		_, err := QueryAll[testmodels.Rating](ctx)
		assert.ErrorIs(t, err, errors.ErrNotInitialized)
	})

	t.Run("FirstRegistrationWins", func(t *testing.T) {
		isolate(t, nil)
		first, second := memoryDB(), memoryDB()
		Register[testmodels.AuditEntry](first)
		Register[*testmodels.AuditEntry](second)

		got, ok := FetchConfiguration[testmodels.AuditEntry]()
		require.True(t, ok)
		assert.Same(t, first, got)

		_, ok = FetchConfiguration[testmodels.Rating]()
		assert.False(t, ok)
	})

	t.Run("RoutesModelsToTheirDatabase", func(t *testing.T) {
		def, audit := memoryDB(), memoryDB()
		isolate(t, def)
		Register[testmodels.AuditEntry](audit)

		require.NoError(t, Save(ctx, newRating("elo", "alice", 1500)))
		require.NoError(t, Save(ctx, &testmodels.AuditEntry{Action: "save", Actor: "alice"}))

		inst, err := InstanceFor[testmodels.AuditEntry](ctx)
		require.NoError(t, err)
		assert.Same(t, audit, inst.Configuration())

		inst, err = InstanceFor[testmodels.Rating](ctx)
		require.NoError(t, err)
		assert.Same(t, def, inst.Configuration())

		assert.ElementsMatch(t, []string{DatabaseKey(audit), DatabaseKey(def)}, instances.Keys())
		assert.Len(t, Configs().Configurations(), 2)
	})
}

func TestRegisterModels(t *testing.T) {
	isolate(t, nil)
	shared := memoryDB(datastore.WithModels(testmodels.Rating{}, &testmodels.AuditEntry{}))
	audit := memoryDB()
	Register[testmodels.AuditEntry](audit)

	require.NoError(t, RegisterModels(shared))

	got, ok := FetchConfiguration[testmodels.Rating]()
	require.True(t, ok)
	assert.Same(t, shared, got)
	got, ok = FetchConfiguration[testmodels.AuditEntry]()
	require.True(t, ok)
	assert.Same(t, audit, got)
	_, ok = FetchConfiguration[testmodels.RatingSystem]()
	assert.False(t, ok)

	assert.Error(t, RegisterModels(memoryDB(datastore.WithModels(42))))
}

func TestSetup(t *testing.T) {
	isolate(t, nil)
	ctx := context.Background()
	cfg := config.Default()
	cfg.Name = uuid.NewString()
	cfg.InMemory = true
	cfg.Workers = 2

	dc, err := Setup(ctx, cfg, datastore.WithModels(testmodels.Rating{}))
	require.NoError(t, err)
	assert.Equal(t, 2, AsyncExecutor().Workers())

	got, ok := FetchConfiguration[testmodels.Rating]()
	require.True(t, ok)
	assert.Same(t, dc, got)
	def, ok := Configs().Default()
	require.True(t, ok)
	assert.Same(t, dc, def)

	require.NoError(t, Save(ctx, newRating("elo", "alice", 1500)))
	res := <-QueryAllAsSingle[testmodels.Rating](ctx)
	require.NoError(t, res.Err)
	assert.Len(t, res.Value, 1)
}

func TestSaveAssignsSequentialKeys(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()

	a, b := newRating("elo", "alice", 1500), newRating("elo", "bob", 1320)
	require.NoError(t, Save(ctx, a))
	require.NoError(t, Save(ctx, b))
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)

	batch := []testmodels.Rating{
		*newRating("glicko", "carol", 1710),
		{ID: 40, SystemID: "glicko", Player: "dave", Score: 1400},
		*newRating("glicko", "erin", 1600),
	}
	require.NoError(t, SaveAll(ctx, batch))
	assert.Equal(t, int64(3), batch[0].ID)
	assert.Equal(t, int64(40), batch[1].ID)
	assert.Equal(t, int64(5), batch[2].ID)

	n, err := Count[testmodels.Rating](ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// Saving an existing key updates it.
	a.Score = 1550
	require.NoError(t, Save(ctx, a))
	got, err := QueryFirst[testmodels.Rating](ctx, query.New().EqualTo("id", a.ID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1550.0, got.Score)

	require.NoError(t, SaveAll[testmodels.Rating](ctx, nil))
}

func TestAutoIncrementNeedsIntegerKey(t *testing.T) {
	isolate(t, datastore.NewConfiguration(uuid.NewString(), datastore.WithEngine(mock.New())))
	err := Save(context.Background(), &badKey{Label: "x"})
	assert.True(t, errors.IsValidationError(err), "got %v", err)
}

func TestCreateAndCreateOrUpdate(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()

	sys := &testmodels.RatingSystem{ID: "elo", Name: testmodels.StrPtr("Elo")}
	require.NoError(t, Create(ctx, sys))
	assert.True(t, errors.IsAlreadyExists(Create(ctx, sys)))

	sys.Ratings = 7
	require.NoError(t, CreateOrUpdate(ctx, sys))
	got, err := QueryFirst[testmodels.RatingSystem](ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.Ratings)

	err = CreateOrUpdate(ctx, &testmodels.AuditEntry{Action: "x"})
	assert.ErrorIs(t, err, errors.ErrPrimaryKeyRequired)

	require.NoError(t, Create(ctx, &testmodels.AuditEntry{Action: "create", Actor: "alice"}))
	require.NoError(t, Save(ctx, &testmodels.AuditEntry{Action: "save", Actor: "alice"}))
	n, err := Count[testmodels.AuditEntry](ctx, query.New().EqualTo("actor", "alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestManagedVariantsReturnStoredValues(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()
	inst, err := InstanceFor[testmodels.Rating](ctx)
	require.NoError(t, err)

	r := newRating("elo", "alice", 1500)
	saved, err := SaveIn(ctx, inst, r)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)
	assert.Equal(t, *r, *saved)

	// The returned value is a detached copy.
	saved.Score = 0
	again, err := QueryFirst[testmodels.Rating](ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, again.Score)

	all, err := SaveAllIn(ctx, inst, []testmodels.Rating{*newRating("elo", "bob", 1), *newRating("elo", "carol", 2)})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []int64{2, 3}, []int64{all[0].ID, all[1].ID})

	sys, err := CreateIn(ctx, inst, &testmodels.RatingSystem{ID: "elo", SiteURL: "https://elo.example"})
	require.NoError(t, err)
	assert.Equal(t, "https://elo.example", sys.SiteURL)

	sys.SiteURL = "https://elo.example/v2"
	updated, err := CreateOrUpdateIn(ctx, inst, sys)
	require.NoError(t, err)
	assert.Equal(t, "https://elo.example/v2", updated.SiteURL)
}

func TestQueries(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()

	first, err := QueryFirst[testmodels.Rating](ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, first)
	last, err := QueryLast[testmodels.Rating](ctx, query.New().EqualTo("player", "nobody"))
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, SaveAll(ctx, []testmodels.Rating{
		*newRating("elo", "alice", 1500),
		*newRating("elo", "bob", 1320),
		*newRating("glicko", "carol", 1710),
		*newRating("elo", "dave", 1320),
	}))

	first, err = QueryFirst[testmodels.Rating](ctx, query.New().EqualTo("system_id", "elo"))
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Player)
	last, err = QueryLast[testmodels.Rating](ctx, query.New().EqualTo("system_id", "elo"))
	require.NoError(t, err)
	assert.Equal(t, "dave", last.Player)

	sorted, err := QuerySorted[testmodels.Rating](ctx, nil,
		query.SortField{Field: "score", Order: query.Ascending},
		query.SortField{Field: "player", Order: query.Descending})
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "bob", "alice", "carol"}, players(sorted))

	elo, err := Query[testmodels.Rating](ctx, query.New().EqualTo("SystemID", "elo").GreaterThan("score", 1400))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, players(elo))

	_, err = Query[testmodels.Rating](ctx, query.New().EqualTo("missing", 1))
	assert.True(t, errors.IsValidationError(err))
}

func players(rs []testmodels.Rating) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Player
	}
	return out
}

func TestDelete(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()
	require.NoError(t, SaveAll(ctx, []testmodels.Rating{
		*newRating("elo", "alice", 1500),
		*newRating("elo", "bob", 1320),
		*newRating("glicko", "carol", 1710),
	}))

	n, err := Delete[testmodels.Rating](ctx, query.New().EqualTo("system_id", "elo"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, DeleteAll[testmodels.Rating](ctx))
	count, err := Count[testmodels.Rating](ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Keys continue from the largest remaining key, which is now none.
	r := newRating("elo", "frank", 1000)
	require.NoError(t, Save(ctx, r))
	assert.Equal(t, int64(1), r.ID)
}

func TestQueryAndUpdate(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()
	require.NoError(t, SaveAll(ctx, []testmodels.Rating{
		*newRating("elo", "alice", 1500),
		*newRating("elo", "bob", 1320),
	}))

	found, err := QueryAndUpdate(ctx, query.New().EqualTo("player", "bob"), func(r *testmodels.Rating) {
		r.Score = 1333
		r.Comment = testmodels.StrPtr("adjusted")
	})
	require.NoError(t, err)
	assert.True(t, found)

	bob, err := QueryFirst[testmodels.Rating](ctx, query.New().EqualTo("player", "bob"))
	require.NoError(t, err)
	assert.Equal(t, 1333.0, bob.Score)
	require.NotNil(t, bob.Comment)
	assert.Equal(t, "adjusted", *bob.Comment)

	found, err = QueryAndUpdate(ctx, query.New().EqualTo("player", "nobody"), func(r *testmodels.Rating) {
		t.Fatal("modify called without a match")
	})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()
	engine := mock.New()
	isolate(t, datastore.NewConfiguration(uuid.NewString(), datastore.WithEngine(engine)))

	inst, err := InstanceFor[testmodels.Rating](ctx)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, newRating("elo", "alice", 1500)))

	boom := stderrors.New("boom")
	err = Transaction(ctx, inst, func(ctx context.Context, tx datastore.Instance) error {
		require.NoError(t, Save(ctx, newRating("elo", "bob", 1320)))
		n, err := Count[testmodels.Rating](ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := Count[testmodels.Rating](ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = Transaction(ctx, inst, func(ctx context.Context, tx datastore.Instance) error {
		return Transaction(ctx, inst, func(ctx context.Context, inner datastore.Instance) error {
			assert.Same(t, tx, inner)
			_, err := SaveIn(ctx, inner, newRating("elo", "carol", 1710))
			return err
		})
	})
	require.NoError(t, err)
	n, err = Count[testmodels.Rating](ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestEngineErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := stderrors.New("disk full")
	engine := mock.New().WithPutError(boom)
	isolate(t, datastore.NewConfiguration(uuid.NewString(), datastore.WithEngine(engine)))

	assert.ErrorIs(t, Save(ctx, newRating("elo", "alice", 1500)), boom)
	assert.ErrorIs(t, Create(ctx, &testmodels.AuditEntry{Action: "x"}), boom)
}

func TestNotInSchema(t *testing.T) {
	isolate(t, memoryDB(datastore.WithModels(testmodels.Rating{})))
	_, err := QueryAll[testmodels.RatingSystem](context.Background())
	assert.True(t, errors.IsNotInSchema(err), "got %v", err)
}

func TestOpenSharesInstances(t *testing.T) {
	isolate(t, nil)
	ctx := context.Background()
	cfg := memoryDB()

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	b, err := Open(ctx, datastore.NewConfiguration(cfg.Name, datastore.InMemory()))
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = Open(ctx, datastore.NewConfiguration("x", datastore.WithEngine(mock.New().WithOpenError(stderrors.New("locked")))))
	assert.ErrorContains(t, err, "locked")
	_, err = Open(ctx, nil)
	assert.Error(t, err)
}

func TestMigrationCanUseHelpers(t *testing.T) {
	ctx := context.Background()
	engine := mock.New()
	name := uuid.NewString()

	v1, err := engine.Open(ctx, datastore.NewConfiguration(name, datastore.WithEngine(engine), datastore.WithSchemaVersion(1)))
	require.NoError(t, err)
	store, err := datastore.For[testmodels.Rating](ctx, v1)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, []testmodels.Rating{{ID: 1, SystemID: "elo", Player: "alice", Score: 1500}}))
	require.NoError(t, v1.Close())

	var seen int64
	v2 := datastore.NewConfiguration(name,
		datastore.WithEngine(engine),
		datastore.WithSchemaVersion(2),
		datastore.WithMigration(func(ctx context.Context, inst datastore.Instance, from, to uint64) error {
			n, err := Count[testmodels.Rating](ctx, nil)
			if err != nil {
				return err
			}
			seen = n
			if err := Save(ctx, &testmodels.AuditEntry{Action: "migrate", Actor: "system"}); err != nil {
				return err
			}
			return Save(ctx, newRating("elo", "bob", 1320))
		}))
	isolate(t, v2)
	Register[testmodels.AuditEntry](memoryDB())

	done := make(chan error, 1)
	go func() {
		_, err := QueryAll[testmodels.Rating](ctx)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("opening a database whose migration uses helpers did not finish")
	}

	assert.Equal(t, int64(1), seen)
	rs, err := QueryAll[testmodels.Rating](ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, players(rs))
	audits, err := QueryAll[testmodels.AuditEntry](ctx)
	require.NoError(t, err)
	assert.Len(t, audits, 1)
	assert.Len(t, instances.Keys(), 2)
}

func TestAsyncHelpers(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()
	require.NoError(t, SaveAll(ctx, []testmodels.Rating{
		*newRating("elo", "alice", 1500),
		*newRating("elo", "bob", 1320),
	}))

	var (
		all         []testmodels.Rating
		first, last *testmodels.Rating
		filtered    []testmodels.Rating
		errs        = make(chan error, 4)
	)
	require.NoError(t, QueryAllAsync(ctx, func(rs []testmodels.Rating, err error) { all = rs; errs <- err }))
	require.NoError(t, QueryFirstAsync(ctx, nil, func(r *testmodels.Rating, err error) { first = r; errs <- err }))
	require.NoError(t, QueryLastAsync(ctx, nil, func(r *testmodels.Rating, err error) { last = r; errs <- err }))
	require.NoError(t, QueryAsync(ctx, query.New().LessThan("score", 1400), func(rs []testmodels.Rating, err error) {
		filtered = rs
		errs <- err
	}))

	testutil.WaitExecutorIdle(t, AsyncExecutor())
	for i := 0; i < 4; i++ {
		require.NoError(t, <-errs)
	}
	assert.Len(t, all, 2)
	assert.Equal(t, "alice", first.Player)
	assert.Equal(t, "bob", last.Player)
	assert.Equal(t, []string{"bob"}, players(filtered))

	res := <-QueryAllAsSingle[testmodels.Rating](ctx)
	require.NoError(t, res.Err)
	assert.Len(t, res.Value, 2)

	res = <-QuerySortedAsSingle[testmodels.Rating](ctx, nil, query.SortField{Field: "score"})
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"bob", "alice"}, players(res.Value))

	res = <-QueryAsSingle[testmodels.Rating](ctx, query.New().EqualTo("player", "alice"))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"alice"}, players(res.Value))
}

func TestAsyncAfterShutdown(t *testing.T) {
	isolate(t, memoryDB())
	stopped := executor.New(1)
	require.NoError(t, stopped.Shutdown(context.Background()))
	prev := SetAsyncExecutor(stopped)
	defer SetAsyncExecutor(prev)

	ctx := context.Background()
	assert.ErrorIs(t, QueryAllAsync(ctx, func([]testmodels.Rating, error) {}), executor.ErrClosed)
	res := <-QueryAllAsSingle[testmodels.Rating](ctx)
	assert.ErrorIs(t, res.Err, executor.ErrClosed)
}

// occupy installs a one-worker executor whose only worker is held until
// the returned release func is called.
func occupy(t *testing.T) (*executor.Executor, func()) {
	t.Helper()
	exec := executor.New(1, executor.WithName(t.Name()))
	prev := SetAsyncExecutor(exec)
	t.Cleanup(func() { SetAsyncExecutor(prev) })

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, exec.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started
	var once sync.Once
	return exec, func() { once.Do(func() { close(release) }) }
}

func TestAsyncTasksDroppedAtShutdownReport(t *testing.T) {
	isolate(t, memoryDB())
	ctx := context.Background()
	exec, release := occupy(t)
	defer release()

	single := QueryAllAsSingle[testmodels.Rating](ctx)
	called := make(chan error, 1)
	require.NoError(t, QueryAllAsync(ctx, func(_ []testmodels.Rating, err error) { called <- err }))

	deadline, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, exec.Shutdown(deadline), context.DeadlineExceeded)

	select {
	case res, ok := <-single:
		require.True(t, ok)
		assert.ErrorIs(t, res.Err, context.Canceled)
		_, ok = <-single
		assert.False(t, ok, "single delivers one result then closes")
	case <-time.After(5 * time.Second):
		t.Fatal("single never delivered")
	}

	select {
	case err := <-called:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestBackgroundWorkStartedInTransactionSeesCommittedData(t *testing.T) {
	isolate(t, memoryDB())
	ctx, cancelFlow := context.WithCancel(context.Background())
	defer cancelFlow()
	_, release := occupy(t)
	defer release()

	require.NoError(t, Save(ctx, newRating("elo", "alice", 1500)))
	_, err := QueryAll[testmodels.Rating](ctx)
	require.NoError(t, err)
	inst, err := InstanceFor[testmodels.Rating](ctx)
	require.NoError(t, err)

	type outcome struct {
		ratings []testmodels.Rating
		err     error
	}
	async := make(chan outcome, 1)
	var flow <-chan Result[[]testmodels.Rating]
	require.NoError(t, Transaction(ctx, inst, func(ctx context.Context, tx datastore.Instance) error {
		if err := Save(ctx, newRating("elo", "bob", 1320)); err != nil {
			return err
		}
		if err := QueryAllAsync(ctx, func(rs []testmodels.Rating, err error) { async <- outcome{rs, err} }); err != nil {
			return err
		}
		var err error
		flow, err = QueryAllAsFlow[testmodels.Rating](ctx)
		return err
	}))
	release()

	select {
	case got := <-async:
		require.NoError(t, got.err)
		assert.Equal(t, []string{"alice", "bob"}, players(got.ratings))
	case <-time.After(5 * time.Second):
		t.Fatal("callback never invoked")
	}
	assert.Equal(t, []string{"alice", "bob"}, players(receive(t, flow)))
}

func receive[T any](t *testing.T, ch <-chan Result[T]) T {
	t.Helper()
	select {
	case r, ok := <-ch:
		require.True(t, ok, "flow closed")
		require.NoError(t, r.Err)
		return r.Value
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for flow")
	}
	var zero T
	return zero
}

func TestQueryAsFlow(t *testing.T) {
	isolate(t, memoryDB())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flow, err := QueryAllAsFlow[testmodels.Rating](ctx)
	require.NoError(t, err)
	assert.Empty(t, receive(t, flow))

	require.NoError(t, Save(ctx, newRating("elo", "alice", 1500)))
	assert.Equal(t, []string{"alice"}, players(receive(t, flow)))

	inst, err := InstanceFor[testmodels.Rating](ctx)
	require.NoError(t, err)
	require.NoError(t, Transaction(ctx, inst, func(ctx context.Context, tx datastore.Instance) error {
		if err := Save(ctx, newRating("elo", "bob", 1320)); err != nil {
			return err
		}
		_, err := SaveIn(ctx, tx, newRating("elo", "carol", 1710))
		return err
	}))
	assert.Equal(t, []string{"alice", "bob", "carol"}, players(receive(t, flow)))

	cancel()
	for range flow {
	}
	assert.Zero(t, commits.observers(DatabaseKey(inst.Configuration()), "ratings"))
}

func TestQuerySortedAsFlowIgnoresOtherTables(t *testing.T) {
	isolate(t, memoryDB())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flow, err := QuerySortedAsFlow[testmodels.Rating](ctx, query.New().EqualTo("system_id", "elo"),
		query.SortField{Field: "score", Order: query.Descending})
	require.NoError(t, err)
	assert.Empty(t, receive(t, flow))

	require.NoError(t, Create(ctx, &testmodels.RatingSystem{ID: "elo"}))
	require.NoError(t, SaveAll(ctx, []testmodels.Rating{
		*newRating("elo", "alice", 1500),
		*newRating("elo", "bob", 1720),
		*newRating("glicko", "carol", 1710),
	}))
	assert.Equal(t, []string{"bob", "alice"}, players(receive(t, flow)))

	flowOther, err := QueryAsFlow[testmodels.RatingSystem](ctx, nil)
	require.NoError(t, err)
	assert.Len(t, receive(t, flowOther), 1)
}

func TestVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

package membership

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/kriskindle/internal/derangement"
	"github.com/mmynk/kriskindle/internal/invite"
	"github.com/mmynk/kriskindle/internal/metrics"
	"github.com/mmynk/kriskindle/internal/models"
	"github.com/mmynk/kriskindle/internal/storage"
	"github.com/mmynk/kriskindle/internal/storage/sqlite"
)

const testSecret = "test-secret-test-secret-test-secret"

// countingSource counts how often the generator asked for randomness.
type countingSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	calls int
}

func (c *countingSource) IntN(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.rng.IntN(n)
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(t *testing.T, opts ...Option) (*Service, *countingSource) {
	t.Helper()
	src := &countingSource{rng: rand.New(rand.NewPCG(1, 2))}
	opts = append([]Option{WithGenerator(derangement.New(src))}, opts...)
	return New(newTestStore(t), invite.NewIssuer(testSecret), opts...), src
}

func createOffice(t *testing.T, svc *Service) *models.Group {
	t.Helper()
	res, err := svc.CreateGroup(context.Background(), "Office", 20, []string{"Alice", "Bob", "Charlie", "Diana"})
	require.NoError(t, err)
	return res.Group
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects rosters smaller than three before any shuffling", func(t *testing.T) {
		svc, src := newTestService(t)
		_, err := svc.CreateGroup(ctx, "X", 20, []string{"A", "B"})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.Zero(t, src.calls)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc, src := newTestService(t)
		cases := []struct {
			name    string
			budget  float64
			members []string
		}{
			{"", 20, []string{"A", "B", "C"}},
			{"X", 0, []string{"A", "B", "C"}},
			{"X", -1, []string{"A", "B", "C"}},
			{"X", 20, []string{"A", " ", "C"}},
			{"X", 20, []string{"A", "B", "a"}},
			{"X", 20, []string{"σ", "ς", "x"}},
			{"X", 20, []string{"k", "\u212a", "x"}},
		}
		for _, c := range cases {
			_, err := svc.CreateGroup(ctx, c.name, c.budget, c.members)
			assert.ErrorIs(t, err, models.ErrValidation, "%+v", c)
		}
		assert.Zero(t, src.calls)

		all, err := svc.ListGroups(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("non-ASCII names join under any case", func(t *testing.T) {
		svc, _ := newTestService(t)
		res, err := svc.CreateGroup(ctx, "Greek", 20, []string{"Σοφία", "Νίκος", "Ελένη"})
		require.NoError(t, err)

		joined, err := svc.JoinGroup(ctx, res.Group.ID, "ΣΟΦΊΑ")
		require.NoError(t, err)
		assert.Equal(t, "Σοφία", joined.Member)

		_, err = svc.JoinGroup(ctx, res.Group.ID, "σοφία")
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("three members produce a derangement", func(t *testing.T) {
		svc, _ := newTestService(t)
		res, err := svc.CreateGroup(ctx, "X", 20, []string{"A", "B", "C"})
		require.NoError(t, err)

		g := res.Group
		assert.NotEmpty(t, g.ID)
		assert.Equal(t, "A", g.Owner)
		require.NoError(t, g.CheckAssignment())

		id, err := invite.Resolve(res.JoinRef)
		require.NoError(t, err)
		assert.Equal(t, g.ID, id)

		stored, err := svc.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		require.NoError(t, stored.CheckAssignment())
		for i, m := range stored.Members {
			assert.Equal(t, g.Members[i].AssignedTo, m.AssignedTo)
			assert.False(t, m.HasJoined)
		}
	})
}

func TestJoinGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("case-insensitive", func(t *testing.T) {
		for _, name := range []string{"alice", "ALICE"} {
			svc, _ := newTestService(t)
			g := createOffice(t, svc)

			res, err := svc.JoinGroup(ctx, g.ID, name)
			require.NoError(t, err)
			assert.Equal(t, "Alice", res.Member)
			assert.Equal(t, g.Members[0].AssignedTo, res.Assignee.Name)
		}
	})

	t.Run("returns the assignee's current wishlist", func(t *testing.T) {
		svc, _ := newTestService(t)
		g := createOffice(t, svc)
		target := g.Members[0].AssignedTo

		_, err := svc.UpdateWishlist(ctx, g.ID, target, []string{"Book", "Socks"})
		require.NoError(t, err)

		res, err := svc.JoinGroup(ctx, g.ID, "Alice")
		require.NoError(t, err)
		assert.Equal(t, target, res.Assignee.Name)
		assert.Equal(t, []string{"Book", "Socks"}, res.Assignee.Wishlist)
	})

	t.Run("second join conflicts without changing state", func(t *testing.T) {
		svc, _ := newTestService(t)
		g := createOffice(t, svc)

		_, err := svc.JoinGroup(ctx, g.ID, "Bob")
		require.NoError(t, err)
		before, err := svc.GetGroup(ctx, g.ID)
		require.NoError(t, err)

		_, err = svc.JoinGroup(ctx, g.ID, "bob")
		assert.ErrorIs(t, err, models.ErrConflict)

		after, err := svc.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
		for i := range before.Members {
			assert.Equal(t, before.Members[i].HasJoined, after.Members[i].HasJoined)
		}
	})

	t.Run("unknown member and group", func(t *testing.T) {
		svc, _ := newTestService(t)
		g := createOffice(t, svc)

		_, err := svc.JoinGroup(ctx, g.ID, "Mallory")
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.EqualError(t, err, "no such member")

		_, err = svc.JoinGroup(ctx, "nonexistent-id", "Alice")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestJoinGroup_ConcurrentRace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	g := createOffice(t, svc)

	const racers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
		others    = make(chan error, racers)
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			name := "Charlie"
			if i%2 == 1 {
				name = "charlie"
			}
			_, err := svc.JoinGroup(ctx, g.ID, name)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, models.ErrConflict):
				conflicts.Add(1)
			default:
				others <- err
			}
		}(i)
	}
	// Joins for other members race alongside and must all succeed.
	for _, name := range []string{"Alice", "Bob", "Diana"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			<-start
			if _, err := svc.JoinGroup(ctx, g.ID, name); err != nil {
				others <- err
			}
		}(name)
	}
	close(start)
	wg.Wait()
	close(others)

	for err := range others {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(racers-1), conflicts.Load())

	final, err := svc.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	for _, m := range final.Members {
		assert.True(t, m.HasJoined, "%s should have joined", m.Name)
	}
}

func TestJoinGroup_WholeGroupAtOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	names := make([]string, 30)
	for i := range names {
		names[i] = fmt.Sprintf("Member %02d", i)
	}
	res, err := svc.CreateGroup(ctx, "Company", 15, names)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, len(names))
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			<-start
			if _, err := svc.JoinGroup(ctx, res.Group.ID, name); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}(name)
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("join failed: %v", err)
	}
	final, err := svc.GetGroup(ctx, res.Group.ID)
	require.NoError(t, err)
	for _, m := range final.Members {
		assert.True(t, m.HasJoined, "%s should have joined", m.Name)
	}
	assert.Equal(t, res.Group.Version, final.Version)
}

func TestJoinGroup_RacesWishlistUpdates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	g := createOffice(t, svc)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, 16)
	)
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := fn(); err != nil {
				errs <- err
			}
		}()
	}
	for _, name := range []string{"Alice", "Bob", "Charlie", "Diana"} {
		run(func() error {
			_, err := svc.JoinGroup(ctx, g.ID, name)
			return err
		})
		run(func() error {
			_, err := svc.UpdateWishlist(ctx, g.ID, name, []string{name + "'s gift"})
			return err
		})
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	final, err := svc.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	for _, m := range final.Members {
		assert.True(t, m.HasJoined, "%s should have joined", m.Name)
		assert.Equal(t, []string{m.Name + "'s gift"}, m.Wishlist)
	}
}

func TestGetAssignment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	g := createOffice(t, svc)

	_, err := svc.GetAssignment(ctx, g.ID, "Diana")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.JoinGroup(ctx, g.ID, "Diana")
	require.NoError(t, err)

	assignee, err := svc.GetAssignment(ctx, g.ID, "diana")
	require.NoError(t, err)
	assert.Equal(t, g.Members[3].AssignedTo, assignee.Name)

	_, err = svc.GetAssignment(ctx, "nonexistent-id", "Diana")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateWishlist(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	g := createOffice(t, svc)

	t.Run("round trip is a full replace", func(t *testing.T) {
		_, err := svc.UpdateWishlist(ctx, g.ID, "Alice", []string{"Pen", "Mug", "Tea"})
		require.NoError(t, err)

		updated, err := svc.UpdateWishlist(ctx, g.ID, "Alice", []string{"Book", "Socks"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Book", "Socks"}, updated.Members[0].Wishlist)

		fetched, err := svc.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Book", "Socks"}, fetched.Members[0].Wishlist)
	})

	t.Run("keeps duplicates", func(t *testing.T) {
		_, err := svc.UpdateWishlist(ctx, g.ID, "Bob", []string{"Socks", "Socks"})
		require.NoError(t, err)
		fetched, err := svc.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Socks", "Socks"}, fetched.Members[1].Wishlist)
	})

	t.Run("blank item", func(t *testing.T) {
		_, err := svc.UpdateWishlist(ctx, g.ID, "Alice", []string{"Book", ""})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("missing member or group", func(t *testing.T) {
		_, err := svc.UpdateWishlist(ctx, g.ID, "Zed", []string{"Book"})
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = svc.UpdateWishlist(ctx, "nonexistent-id", "Alice", []string{"Book"})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("does not touch join state", func(t *testing.T) {
		_, err := svc.JoinGroup(ctx, g.ID, "Charlie")
		require.NoError(t, err)
		_, err = svc.UpdateWishlist(ctx, g.ID, "Charlie", []string{"Game"})
		require.NoError(t, err)

		fetched, err := svc.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, fetched.Members[2].HasJoined)
	})
}

func TestOwnershipGate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	g := createOffice(t, svc)

	_, err := svc.EditGroup(ctx, g.ID, "Bob", "Hijacked", 1000)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	err = svc.DeleteGroup(ctx, g.ID, "Bob")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	edited, err := svc.EditGroup(ctx, g.ID, "Alice", "Renamed", 35)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", edited.Name)
	assert.Equal(t, 35.0, edited.Budget)
	assert.Equal(t, "Alice", edited.Owner)
	for i, m := range edited.Members {
		assert.Equal(t, g.Members[i].AssignedTo, m.AssignedTo)
	}

	_, err = svc.EditGroup(ctx, g.ID, "Alice", "Renamed", 0)
	assert.ErrorIs(t, err, models.ErrValidation)

	// A non-owner is turned away before the values are looked at.
	_, err = svc.EditGroup(ctx, g.ID, "Bob", "", 0)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = svc.EditGroup(ctx, "nonexistent-id", "Alice", "Renamed", -1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, svc.DeleteGroup(ctx, g.ID, "Alice"))
	_, err = svc.GetGroup(ctx, g.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = svc.DeleteGroup(ctx, g.ID, "Alice")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.EditGroup(ctx, g.ID, "Alice", "Again", 10)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListAndFilterGroups(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	a := createOffice(t, svc)
	b := createOffice(t, svc)

	all, err := svc.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := svc.FilterGroups(ctx, []string{b.ID, "nonexistent-id"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, b.ID, filtered[0].ID)
	assert.NotEqual(t, a.ID, filtered[0].ID)

	_, err = svc.FilterGroups(ctx, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

// brokenStore fails every read; conflictStore never lets an edit through.
type brokenStore struct{ storage.Store }

func (brokenStore) GetGroup(context.Context, string) (*models.Group, error) {
	return nil, errors.New("disk on fire")
}

type conflictStore struct{ storage.Store }

func (conflictStore) UpdateGroup(context.Context, *models.Group) error {
	return storage.ErrVersionConflict
}

// cancellingStore reports a version conflict and cancels the caller's context.
type cancellingStore struct {
	storage.Store
	cancel context.CancelFunc
}

func (c *cancellingStore) UpdateGroup(context.Context, *models.Group) error {
	c.cancel()
	return storage.ErrVersionConflict
}

func TestInternalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("store failure is opaque", func(t *testing.T) {
		svc := New(brokenStore{newTestStore(t)}, invite.NewIssuer(testSecret))
		_, err := svc.JoinGroup(ctx, "some-id", "Alice")
		assert.ErrorIs(t, err, models.ErrInternal)
		assert.Equal(t, "internal error", err.Error())
	})

	t.Run("edit retries are bounded", func(t *testing.T) {
		base := newTestStore(t)
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)

		seed := New(base, invite.NewIssuer(testSecret))
		g := createOffice(t, seed)

		svc := New(conflictStore{base}, invite.NewIssuer(testSecret), WithMaxRetries(3), WithMetrics(m))
		_, err := svc.EditGroup(ctx, g.ID, "Alice", "Renamed", 30)
		assert.ErrorIs(t, err, models.ErrInternal)

		expected := `
# HELP kriskindle_cas_retries_total Read-modify-write retries after a version conflict.
# TYPE kriskindle_cas_retries_total counter
kriskindle_cas_retries_total{op="edit_group"} 3
`
		assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "kriskindle_cas_retries_total"))

		stored, err := base.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, "Office", stored.Name)
	})

	t.Run("joins and wishlists need no version check", func(t *testing.T) {
		base := newTestStore(t)
		g := createOffice(t, New(base, invite.NewIssuer(testSecret)))

		svc := New(conflictStore{base}, invite.NewIssuer(testSecret), WithMaxRetries(1))
		_, err := svc.JoinGroup(ctx, g.ID, "Alice")
		require.NoError(t, err)
		_, err = svc.UpdateWishlist(ctx, g.ID, "Alice", []string{"Tea"})
		require.NoError(t, err)

		stored, err := base.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, stored.Members[0].HasJoined)
		assert.Equal(t, []string{"Tea"}, stored.Members[0].Wishlist)
	})

	t.Run("cancelled context stops edit retries", func(t *testing.T) {
		base := newTestStore(t)
		g := createOffice(t, New(base, invite.NewIssuer(testSecret)))

		cctx, cancel := context.WithCancel(ctx)
		svc := New(&cancellingStore{Store: base, cancel: cancel}, invite.NewIssuer(testSecret), WithMaxRetries(100))
		_, err := svc.EditGroup(cctx, g.ID, "Alice", "Renamed", 30)
		assert.ErrorIs(t, err, models.ErrInternal)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("exhausted generator", func(t *testing.T) {
		stuck := derangement.New(stuckSource{}).WithMaxAttempts(5)
		svc := New(newTestStore(t), invite.NewIssuer(testSecret), WithGenerator(stuck))
		_, err := svc.CreateGroup(ctx, "X", 10, []string{"A", "B", "C"})
		assert.ErrorIs(t, err, models.ErrInternal)
	})
}

type stuckSource struct{}

func (stuckSource) IntN(n int) int { return n - 1 }

func TestRetryDelay(t *testing.T) {
	for failures := 1; failures <= 12; failures++ {
		ceiling := min(retryBaseDelay<<min(failures-1, 6), retryMaxDelay)
		for i := 0; i < 50; i++ {
			d := retryDelay(failures)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.Less(t, d, ceiling, "failures=%d", failures)
		}
	}
}

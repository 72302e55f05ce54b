package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "mss", 30*time.Minute, true, 0), mr
}

func testSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		AccountID:   "u-1",
		Role:        "admin",
		MFAVerified: true,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(12 * time.Hour).Unix(),
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	sess := testSession("sid-1")
	sess.Impersonation = &Impersonation{AdminID: "u-1", TargetID: "u-2", TargetRole: "merchant", StartedAt: sess.CreatedAt}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "sid-1" || !got.MFAVerified || got.SubjectID() != "u-2" || got.ActorID() != "u-1" || got.SubjectRole() != "merchant" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetMissingSession(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.Get(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty id, got %v", err)
	}
}

func TestGetDropsAbsolutelyExpiredSession(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	sess := testSession("sid-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.now = func() time.Time { return time.Unix(sess.ExpiresAt, 0).Add(time.Second) }

	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	if mr.Exists("mss:sid-1") {
		t.Fatal("expected expired session key to be deleted")
	}
}

func TestSlidingExpiryExtendsIdleWindow(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(20 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if ttl := mr.TTL("mss:sid-1"); ttl < 29*time.Minute {
		t.Fatalf("expected idle window to be renewed, ttl=%v", ttl)
	}
}

func TestReplaceKeepsLifetimeAndRequiresExisting(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	sess := testSession("sid-1")
	sess.MFAVerified = false
	sess.SetupPending = true
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(10 * time.Minute)
	before := mr.TTL("mss:sid-1")

	sess.MFAVerified = true
	sess.SetupPending = false
	if err := store.Replace(ctx, sess); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if mr.TTL("mss:sid-1") != before {
		t.Fatal("expected replace to keep the remaining ttl")
	}
	got, _ := store.Get(ctx, "sid-1")
	if !got.MFAVerified || got.SetupPending {
		t.Fatalf("replace not applied: %+v", got)
	}

	if err := store.Replace(ctx, testSession("ghost")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotentAndCleansIndex(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.Delete(ctx, "sid-1"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

func TestDeleteAllForAccount(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, testSession(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := store.DeleteAllForAccount(ctx, "u-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected %s to be revoked, got %v", id, err)
		}
	}
}

func TestStoreReportsRedisOutage(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	mr.Close()
	if _, err := store.Get(context.Background(), "sid-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisClinicianLocker(client, 5*time.Second), mr
}

func TestWithClinicianLockRunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	clinicianID := uuid.New()

	ran := false
	err := locker.WithClinicianLock(context.Background(), clinicianID, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:clinician:"+clinicianID.String()))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:clinician:"+clinicianID.String()), "lock must be released")
}

func TestWithClinicianLockContention(t *testing.T) {
	locker, mr := newTestLocker(t)
	clinicianID := uuid.New()

	// Another holder already owns the key.
	mr.Set("lock:clinician:"+clinicianID.String(), "other-token")

	err := locker.WithClinicianLock(context.Background(), clinicianID, func(ctx context.Context) error {
		t.Fatal("critical section must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// The foreign token survives: the Lua release only deletes its own.
	got, err := mr.Get("lock:clinician:" + clinicianID.String())
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestWithClinicianLockDifferentCliniciansDoNotContend(t *testing.T) {
	locker, _ := newTestLocker(t)

	first := uuid.New()
	second := uuid.New()

	err := locker.WithClinicianLock(context.Background(), first, func(ctx context.Context) error {
		return locker.WithClinicianLock(ctx, second, func(ctx context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)
}

func TestWithClinicianLockReleasesAfterError(t *testing.T) {
	locker, mr := newTestLocker(t)
	clinicianID := uuid.New()

	sentinel := errors.New("insert failed")
	err := locker.WithClinicianLock(context.Background(), clinicianID, func(ctx context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.False(t, mr.Exists("lock:clinician:"+clinicianID.String()))
}

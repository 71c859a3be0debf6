package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingPurger struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingPurger) Purge(context.Context, time.Time) (int64, int64, error) {
	c.calls.Add(1)
	if c.fail {
		return 0, 0, errors.New("db down")
	}
	return 2, 3, nil
}

func TestRunJanitorPurgesUntilCancelled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunJanitor(ctx, p, 5*time.Millisecond, time.Hour, zap.New(core).Sugar()) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.NotZero(t, logs.FilterMessage("purged expired credentials").Len())
}

func TestRunJanitorKeepsGoingAfterFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &countingPurger{fail: true}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunJanitor(ctx, p, 5*time.Millisecond, time.Hour, zap.New(core).Sugar()) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.NotZero(t, logs.FilterMessage("purge expired credentials failed").Len())
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pq.Error{Code: uniqueViolation, Constraint: "users_email_key"}))
	require.True(t, isUniqueViolation(&pq.Error{Code: uniqueViolation, Constraint: "users_phone_key"}))
	require.False(t, isUniqueViolation(&pq.Error{Code: uniqueViolation, Constraint: "refresh_tokens_token_key"}))
	require.False(t, isUniqueViolation(&pq.Error{Code: "23503", Constraint: "users_email_key"}))
	require.False(t, isUniqueViolation(errors.New("boom")))
	require.False(t, isUniqueViolation(nil))
}

package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// TestStreamPreservesOrder checks that the consumer sees events exactly as produced.
func TestStreamPreservesOrder(t *testing.T) {
	t.Parallel()

	stream := NewStream(2)
	const n = 100
	go func() {
		defer stream.Close()
		for i := 0; i < n; i++ {
			if err := stream.Emit(context.Background(), crawler.Event{Type: crawler.EventJobFound, Page: i}); err != nil {
				return
			}
		}
	}()

	next := 0
	for evt := range stream.Events() {
		require.Equal(t, next, evt.Page)
		next++
	}
	require.Equal(t, n, next)
}

// TestStreamAbandonUnblocksProducer ensures a departed consumer releases a blocked Emit.
func TestStreamAbandonUnblocksProducer(t *testing.T) {
	t.Parallel()

	stream := NewStream(1)
	require.NoError(t, stream.Emit(context.Background(), crawler.Event{Type: crawler.EventStart}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- stream.Emit(context.Background(), crawler.Event{Type: crawler.EventCompanyStart})
	}()

	time.Sleep(20 * time.Millisecond)
	stream.Abandon()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("emit stayed blocked after abandon")
	}
	require.ErrorIs(t, stream.Emit(context.Background(), crawler.Event{Type: crawler.EventComplete}), ErrStreamClosed)
}

// TestStreamEmitHonorsContext verifies a canceled producer context unblocks Emit.
func TestStreamEmitHonorsContext(t *testing.T) {
	t.Parallel()

	stream := NewStream(1)
	require.NoError(t, stream.Emit(context.Background(), crawler.Event{Type: crawler.EventStart}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := stream.Emit(ctx, crawler.Event{Type: crawler.EventCompanyStart})
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

// TestStreamEmitAfterClose rejects late events instead of panicking.
func TestStreamEmitAfterClose(t *testing.T) {
	t.Parallel()

	stream := NewStream(1)
	stream.Close()
	stream.Close()
	require.ErrorIs(t, stream.Emit(context.Background(), crawler.Event{Type: crawler.EventStart}), ErrStreamClosed)
	_, open := <-stream.Events()
	require.False(t, open)
}

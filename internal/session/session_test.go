package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/model"
)

func TestRunAppliesStream(t *testing.T) {
	sc := NewContext()
	updates := make(chan *Identity)
	done := make(chan error, 1)
	go func() { done <- sc.Run(context.Background(), updates) }()

	changed := sc.Changed()
	updates <- &Identity{Email: "buyer@example.com", Role: model.RoleBuyer, Status: model.StatusActive}
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
	require.NotNil(t, sc.Current())
	assert.Equal(t, "buyer@example.com", sc.Current().Email)

	changed = sc.Changed()
	updates <- nil
	<-changed
	assert.Nil(t, sc.Current())

	close(updates)
	require.NoError(t, <-done)
}

func TestRunOnlyOnce(t *testing.T) {
	sc := NewContext()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan *Identity)
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx, updates) }()

	// wait until the first subscription is active
	require.Eventually(t, sc.running.Load, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sc.Run(ctx, updates), ErrAlreadySubscribed)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCurrentIsCopy(t *testing.T) {
	sc := NewContext()
	sc.set(&Identity{Email: "a@b.c"})
	cur := sc.Current()
	cur.Email = "mutated"
	assert.Equal(t, "a@b.c", sc.Current().Email)
}

func TestOwnsAndContext(t *testing.T) {
	id := &Identity{Email: "buyer@example.com"}
	assert.True(t, id.Owns(" Buyer@Example.com"))
	assert.False(t, id.Owns("other@example.com"))

	var nobody *Identity
	assert.False(t, nobody.Owns("buyer@example.com"))
	assert.False(t, nobody.Staff())

	ctx := WithIdentity(context.Background(), id)
	assert.Same(t, id, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}

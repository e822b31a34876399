package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginSupersedes(t *testing.T) {
	m := New()
	assert.Equal(t, KindNone, m.Get().Kind)
	require.NoError(t, m.Wait(context.Background()))

	gen1, ctx1 := m.Begin(context.Background(), KindPlaylist, "PL1")
	assert.True(t, m.IsCurrent(gen1))
	assert.True(t, m.Get().Loading)

	gen2, ctx2 := m.Begin(context.Background(), KindSearch, "lofi")
	assert.False(t, m.IsCurrent(gen1))
	assert.True(t, m.IsCurrent(gen2))
	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())

	// Stale updates are dropped.
	assert.False(t, m.AddLoaded(gen1, 50, "tok"))
	m.Finish(gen1, errors.New("late failure"))
	got := m.Get()
	assert.Equal(t, KindSearch, got.Kind)
	assert.Equal(t, "lofi", got.ID)
	assert.Equal(t, 0, got.LoadedCount)
	assert.Empty(t, got.Error)
	assert.True(t, got.Loading)
}

func TestAddLoadedAndFinish(t *testing.T) {
	m := New()
	gen, _ := m.Begin(context.Background(), KindPlaylist, "PL1")

	assert.True(t, m.AddLoaded(gen, 50, "p2"))
	assert.True(t, m.AddLoaded(gen, 20, ""))
	m.Finish(gen, errors.New("quota exceeded"))

	got := m.Get()
	assert.Equal(t, 70, got.LoadedCount)
	assert.Empty(t, got.NextPageToken)
	assert.False(t, got.Loading)
	assert.Equal(t, "quota exceeded", got.Error)
	assert.Equal(t, gen, m.GetGeneration())
}

func TestCommitPage(t *testing.T) {
	tests := []struct {
		name      string
		supersede bool
		wantOK    bool
		wantCount int
	}{
		{name: "current generation applies", wantOK: true, wantCount: 25},
		{name: "stale generation is skipped", supersede: true, wantOK: false, wantCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			gen, _ := m.Begin(context.Background(), KindPlaylist, "PL1")
			if tt.supersede {
				m.Begin(context.Background(), KindPlaylist, "PL2")
			}

			applied := false
			ok := m.CommitPage(gen, 25, "p2", func() { applied = true })
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOK, applied)
			assert.Equal(t, tt.wantCount, m.Get().LoadedCount)
		})
	}
}

func TestCommitPageHoldsOffBegin(t *testing.T) {
	m := New()
	gen, _ := m.Begin(context.Background(), KindPlaylist, "PL1")

	entered := make(chan struct{})
	release := make(chan struct{})
	committed := make(chan bool, 1)
	go func() {
		committed <- m.CommitPage(gen, 10, "", func() {
			close(entered)
			<-release
		})
	}()
	<-entered

	began := make(chan uint64, 1)
	go func() {
		next, _ := m.Begin(context.Background(), KindSearch, "lofi")
		began <- next
	}()

	select {
	case <-began:
		t.Fatal("Begin returned while a page was being applied")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	assert.True(t, <-committed)
	next := <-began
	assert.False(t, m.IsCurrent(gen))
	assert.True(t, m.IsCurrent(next))
}

func TestWait(t *testing.T) {
	m := New()
	gen, _ := m.Begin(context.Background(), KindPlaylist, "PL1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Finish(gen, nil)
	}()
	require.NoError(t, m.Wait(context.Background()))
	m.Finish(gen, nil)
}

func TestClose(t *testing.T) {
	m := New()
	_, ctx := m.Begin(context.Background(), KindPlaylist, "PL1")
	m.Close()
	assert.Error(t, ctx.Err())
	assert.False(t, m.Get().Loading)
	require.NoError(t, m.Wait(context.Background()))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "playlist", KindPlaylist.String())
	assert.Equal(t, "search", KindSearch.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

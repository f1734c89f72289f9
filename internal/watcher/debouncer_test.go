package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []FileEvent, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch, ok := <-ch:
		require.True(t, ok, "channel closed")
		return batch
	case <-time.After(timeout):
		t.Fatal("timeout waiting for batch")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: one event is added
	d.Add(FileEvent{Path: "/n/a.md", Operation: OpCreate, Timestamp: time.Now()})

	// Then: it comes out after the window
	batch := receive(t, d.Output(), time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "/n/a.md", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation
	}{
		{"create then modify stays create", []Operation{OpCreate, OpModify, OpModify}, []Operation{OpCreate}},
		{"create then delete cancels", []Operation{OpCreate, OpDelete}, nil},
		{"delete then create is a modify", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"modify then delete is a delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"repeated modify collapses", []Operation{OpModify, OpModify, OpModify}, []Operation{OpModify}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(time.Hour)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/n/a.md", Operation: op})
			}
			d.Flush()

			if tt.want == nil {
				select {
				case batch := <-d.Output():
					t.Fatalf("expected no batch, got %v", batch)
				default:
				}
				return
			}
			batch := receive(t, d.Output(), time.Second)
			var got []Operation
			for _, ev := range batch {
				got = append(got, ev.Operation)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	d.Add(FileEvent{Path: "/n/c.md", Operation: OpModify})
	d.Add(FileEvent{Path: "/n/a.md", Operation: OpModify})
	d.Add(FileEvent{Path: "/n/b.md", Operation: OpCreate})
	d.Flush()

	batch := receive(t, d.Output(), time.Second)
	require.Len(t, batch, 3)
	assert.Equal(t, "/n/a.md", batch[0].Path)
	assert.Equal(t, "/n/b.md", batch[1].Path)
	assert.Equal(t, "/n/c.md", batch[2].Path)
}

func TestDebouncer_WindowRestartsOnEachEvent(t *testing.T) {
	// Given: a 80ms window
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	// When: events keep arriving faster than the window
	for i := 0; i < 4; i++ {
		d.Add(FileEvent{Path: "/n/a.md", Operation: OpModify})
		time.Sleep(30 * time.Millisecond)
	}

	// Then: nothing has been emitted yet
	select {
	case <-d.Output():
		t.Fatal("batch emitted before the window went quiet")
	default:
	}
	batch := receive(t, d.Output(), time.Second)
	assert.Len(t, batch, 1)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "/n/a.md", Operation: OpCreate})
	d.Stop()
	d.Stop()

	_, ok := <-d.Output()
	assert.False(t, ok)

	// Adding after stop is a no-op
	d.Add(FileEvent{Path: "/n/b.md", Operation: OpCreate})
	d.Flush()
}

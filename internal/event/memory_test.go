package event

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/youmna-rabie/socket-relay/internal/types"
)

func makeRecord(kind types.Kind, status types.RecordStatus) types.Record {
	return types.Record{
		ID:         uuid.New(),
		Kind:       kind,
		ReceivedAt: time.Now(),
		Status:     status,
		Outcomes:   []types.OutcomeBrief{{Target: "cmd-prod", StatusCode: 200}},
	}
}

func TestNewMemoryStore_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1, -100} {
		_, err := NewMemoryStore(c)
		if err != ErrInvalidCapacity {
			t.Errorf("NewMemoryStore(%d) error = %v, want ErrInvalidCapacity", c, err)
		}
	}
}

func TestSaveAndGet(t *testing.T) {
	store, err := NewMemoryStore(10)
	if err != nil {
		t.Fatal(err)
	}

	rec := makeRecord(types.KindCommand, types.RecordStatusReplied)
	rec.Reply = "done"
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != types.KindCommand {
		t.Errorf("Kind = %q, want %q", got.Kind, types.KindCommand)
	}
	if got.Status != types.RecordStatusReplied {
		t.Errorf("Status = %q, want %q", got.Status, types.RecordStatusReplied)
	}
	if got.Reply != "done" {
		t.Errorf("Reply = %q, want done", got.Reply)
	}
}

func TestGetNotFound(t *testing.T) {
	store, _ := NewMemoryStore(10)
	if _, err := store.Get(uuid.New()); err != ErrNotFound {
		t.Errorf("Get unknown ID: error = %v, want ErrNotFound", err)
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	store, _ := NewMemoryStore(3)

	recs := make([]types.Record, 5)
	for i := range recs {
		recs[i] = makeRecord(types.KindCallback, types.RecordStatusCompleted)
		if err := store.Save(recs[i]); err != nil {
			t.Fatalf("Save[%d]: %v", i, err)
		}
	}

	if c := store.Count(); c != 3 {
		t.Errorf("Count = %d, want 3", c)
	}
	for _, evicted := range recs[:2] {
		if _, err := store.Get(evicted.ID); err != ErrNotFound {
			t.Errorf("evicted record %v still present", evicted.ID)
		}
	}
	for _, kept := range recs[2:] {
		if _, err := store.Get(kept.ID); err != nil {
			t.Errorf("record %v should be present: %v", kept.ID, err)
		}
	}
}

func TestListNewestFirst(t *testing.T) {
	store, _ := NewMemoryStore(10)

	var ids []uuid.UUID
	for range 4 {
		rec := makeRecord(types.KindCommand, types.RecordStatusReplied)
		ids = append(ids, rec.ID)
		store.Save(rec)
	}

	got, err := store.List(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("List len = %d, want 4", len(got))
	}
	for i, rec := range got {
		if want := ids[len(ids)-1-i]; rec.ID != want {
			t.Errorf("List[%d] = %v, want %v", i, rec.ID, want)
		}
	}
}

func TestListPagination(t *testing.T) {
	store, _ := NewMemoryStore(10)

	var ids []uuid.UUID
	for range 6 {
		rec := makeRecord(types.KindCallback, types.RecordStatusCompleted)
		ids = append(ids, rec.ID)
		store.Save(rec)
	}

	tests := []struct {
		name          string
		limit, offset int
		want          []uuid.UUID
	}{
		{"first page", 2, 0, []uuid.UUID{ids[5], ids[4]}},
		{"second page", 2, 2, []uuid.UUID{ids[3], ids[2]}},
		{"partial last page", 4, 4, []uuid.UUID{ids[1], ids[0]}},
		{"past the end", 2, 10, nil},
		{"zero limit", 0, 0, nil},
		{"negative offset", 1, -3, []uuid.UUID{ids[5]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(tt.limit, tt.offset)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("[%d] = %v, want %v", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestListWithEviction(t *testing.T) {
	store, _ := NewMemoryStore(2)

	var last types.Record
	for range 5 {
		last = makeRecord(types.KindCommand, types.RecordStatusFailed)
		store.Save(last)
	}

	got, _ := store.List(10, 0)
	if len(got) != 2 {
		t.Fatalf("List len = %d, want 2", len(got))
	}
	if got[0].ID != last.ID {
		t.Errorf("newest = %v, want %v", got[0].ID, last.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store, _ := NewMemoryStore(50)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 20 {
				store.Save(makeRecord(types.KindCallback, types.RecordStatusCompleted))
			}
		}()
		go func() {
			defer wg.Done()
			for range 20 {
				store.List(10, 0)
				store.Count()
			}
		}()
	}
	wg.Wait()

	if c := store.Count(); c != 50 {
		t.Errorf("Count = %d, want 50", c)
	}
}

func TestStoreInterface(t *testing.T) {
	var _ Store = (*MemoryStore)(nil)
}

func TestStatusCountsTrackEviction(t *testing.T) {
	s, _ := NewMemoryStore(2)

	s.Save(makeRecord(types.KindCommand, types.RecordStatusFailed))
	s.Save(makeRecord(types.KindCommand, types.RecordStatusReplied))
	s.Save(makeRecord(types.KindCallback, types.RecordStatusCompleted))

	counts := s.StatusCounts()
	if _, ok := counts[types.RecordStatusFailed]; ok {
		t.Errorf("evicted status still counted: %v", counts)
	}
	if counts[types.RecordStatusReplied] != 1 || counts[types.RecordStatusCompleted] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

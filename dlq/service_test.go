package dlq_test

import (
	"context"
	"testing"
	"time"

	"github.com/beaconhq/beacon/connector"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/dlq"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
	"github.com/beaconhq/beacon/store/memory"
)

func ctx() context.Context { return context.Background() }

func newService() (*dlq.Service, *memory.Store) {
	store := memory.New()
	svc := dlq.NewService(store, nil)
	return svc, store
}

func pushOne(t *testing.T, svc *dlq.Service, res connector.Result) (*forward.Job, *destination.Destination) {
	t.Helper()
	j := &forward.Job{
		Entity:       entity.New(),
		ID:           id.NewJobID(),
		EventID:      id.NewEventID(),
		State:        forward.StateFailed,
		AttemptCount: 5,
	}
	d := &destination.Destination{
		Entity: entity.New(),
		ID:     id.NewDestinationID(),
		Type:   destination.TypeGA4,
		Name:   "prod",
	}
	evt := &event.Event{
		Entity: entity.New(),
		ID:     j.EventID,
		Name:   "lead_submitted",
		Source: "web",
	}
	if err := svc.PushFailed(ctx(), j, d, evt, res); err != nil {
		t.Fatal(err)
	}
	return j, d
}

func TestPushFailed(t *testing.T) {
	svc, store := newService()

	res := connector.Result{
		Error:      "unexpected status 500",
		StatusCode: 500,
		Response:   "server error",
	}
	j, d := pushOne(t, svc, res)

	entries, err := store.ListDLQ(ctx(), dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.JobID != j.ID {
		t.Fatalf("job ID mismatch: got %v, want %v", entry.JobID, j.ID)
	}
	if entry.EventID != j.EventID {
		t.Fatalf("event ID mismatch")
	}
	if entry.DestinationID != d.ID {
		t.Fatalf("destination ID mismatch")
	}
	if entry.DestinationType != destination.TypeGA4 {
		t.Fatalf("destination type: got %q, want %q", entry.DestinationType, destination.TypeGA4)
	}
	if entry.EventName != "lead_submitted" {
		t.Fatalf("event name: got %q, want %q", entry.EventName, "lead_submitted")
	}
	if entry.Error != "unexpected status 500" {
		t.Fatalf("error: got %q", entry.Error)
	}
	if entry.LastStatusCode != 500 {
		t.Fatalf("status code: got %d, want 500", entry.LastStatusCode)
	}
	if entry.Response != "server error" {
		t.Fatalf("response: got %q", entry.Response)
	}
	if entry.AttemptCount != 5 {
		t.Fatalf("attempt count: got %d, want 5", entry.AttemptCount)
	}
	if entry.FailedAt.IsZero() {
		t.Fatal("expected failed_at to be set")
	}
}

func TestPushMultipleAndList(t *testing.T) {
	svc, _ := newService()

	for range 3 {
		pushOne(t, svc, connector.Result{Error: "err", StatusCode: 500})
	}

	entries, err := svc.List(ctx(), dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestGetDLQEntry(t *testing.T) {
	svc, _ := newService()

	pushOne(t, svc, connector.Result{Error: "err", StatusCode: 500})

	entries, _ := svc.List(ctx(), dlq.ListOpts{Limit: 1})
	if len(entries) == 0 {
		t.Fatal("expected at least 1 entry")
	}

	got, err := svc.Get(ctx(), entries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != entries[0].ID {
		t.Fatal("ID mismatch on Get")
	}
}

func TestListFiltersByDestination(t *testing.T) {
	svc, _ := newService()

	_, d := pushOne(t, svc, connector.Result{Error: "err", StatusCode: 500})
	pushOne(t, svc, connector.Result{Error: "err", StatusCode: 502})

	entries, err := svc.List(ctx(), dlq.ListOpts{DestinationID: &d.ID, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for destination, got %d", len(entries))
	}
	if entries[0].DestinationID != d.ID {
		t.Fatal("wrong destination in filtered list")
	}
}

func TestCount(t *testing.T) {
	svc, _ := newService()

	count, err := svc.Count(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}

	for range 5 {
		pushOne(t, svc, connector.Result{Error: "err", StatusCode: 500})
	}

	count, err = svc.Count(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Fatalf("expected 5, got %d", count)
	}
}

func TestReplay(t *testing.T) {
	svc, store := newService()

	_, d := pushOne(t, svc, connector.Result{Error: "err", StatusCode: 500})

	entries, _ := svc.List(ctx(), dlq.ListOpts{Limit: 1})
	if len(entries) == 0 {
		t.Fatal("expected entry")
	}

	if err := svc.Replay(ctx(), entries[0].ID); err != nil {
		t.Fatal(err)
	}

	// Replay stamps the entry and enqueues a job narrowed to the failed
	// destination.
	got, _ := store.GetDLQ(ctx(), entries[0].ID)
	if got.ReplayedAt == nil {
		t.Fatal("expected replayed_at to be set")
	}

	jobs, err := store.DequeueJobs(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 replay job, got %d", len(jobs))
	}
	if len(jobs[0].Pending) != 1 || jobs[0].Pending[0] != d.ID {
		t.Fatal("replay job not narrowed to failed destination")
	}
}

func TestReplayBulkSkipsReplayed(t *testing.T) {
	svc, _ := newService()

	pushOne(t, svc, connector.Result{Error: "err", StatusCode: 500})
	pushOne(t, svc, connector.Result{Error: "err", StatusCode: 502})

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	replayed, err := svc.ReplayBulk(ctx(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 2 {
		t.Fatalf("expected 2 replayed, got %d", replayed)
	}

	// A second bulk replay over the same window finds nothing new.
	replayed, err = svc.ReplayBulk(ctx(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 0 {
		t.Fatalf("expected 0 on second pass, got %d", replayed)
	}
}

func TestPurge(t *testing.T) {
	svc, _ := newService()

	for range 3 {
		pushOne(t, svc, connector.Result{Error: "err", StatusCode: 500})
	}

	purged, err := svc.Purge(ctx(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged, got %d", purged)
	}

	count, _ := svc.Count(ctx())
	if count != 0 {
		t.Fatalf("expected 0 after purge, got %d", count)
	}
}

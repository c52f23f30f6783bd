package forward_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/beaconhq/beacon/connector"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
	"github.com/beaconhq/beacon/vault"
)

const testVaultKey = "0123456789abcdef0123456789abcdef"

// fakeStore implements forward.WorkerStore over in-memory maps.
type fakeStore struct {
	mu           sync.Mutex
	events       map[id.ID]*event.Event
	destinations map[id.ID]*destination.Destination
	updated      []*forward.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:       make(map[id.ID]*event.Event),
		destinations: make(map[id.ID]*destination.Destination),
	}
}

func (s *fakeStore) DequeueJobs(context.Context, int) ([]*forward.Job, error) { return nil, nil }

func (s *fakeStore) UpdateJob(_ context.Context, j *forward.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, j)
	return nil
}

func (s *fakeStore) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	if evt, ok := s.events[evtID]; ok {
		return evt, nil
	}
	return nil, fmt.Errorf("event %s not found", evtID)
}

func (s *fakeStore) GetDestination(_ context.Context, destID id.ID) (*destination.Destination, error) {
	if d, ok := s.destinations[destID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("destination %s not found", destID)
}

func (s *fakeStore) ListEnabledByType(_ context.Context, t destination.Type) ([]*destination.Destination, error) {
	var out []*destination.Destination
	for _, d := range s.destinations {
		if d.Type == t && d.Enabled {
			out = append(out, d)
		}
	}
	return out, nil
}

// stubConnector records sends and returns a scripted result.
type stubConnector struct {
	mu     sync.Mutex
	sent   []*event.Event
	result connector.Result
}

func (c *stubConnector) Send(_ context.Context, _ map[string]any, evt *event.Event) connector.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, evt)
	return c.result
}

func (c *stubConnector) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeDLQ records pushed failures.
type fakeDLQ struct {
	mu     sync.Mutex
	pushed []destination.Type
}

func (d *fakeDLQ) PushFailed(_ context.Context, _ *forward.Job, dest *destination.Destination, _ *event.Event, _ connector.Result) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushed = append(d.pushed, dest.Type)
	return nil
}

type fixture struct {
	store    *fakeStore
	registry *connector.Registry
	dlq      *fakeDLQ
	worker   *forward.Worker
	vault    *vault.Vault
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	registry := connector.NewRegistry(nil)
	dlq := &fakeDLQ{}
	v := vault.New(testVaultKey)
	worker := forward.NewWorker(store, registry, v, dlq, forward.Config{
		Concurrency:   1,
		PollInterval:  time.Hour,
		BatchSize:     10,
		RetrySchedule: forward.DefaultRetrySchedule,
	}, nil)
	return &fixture{store: store, registry: registry, dlq: dlq, worker: worker, vault: v}
}

func (f *fixture) addDestination(t *testing.T, dt destination.Type, c connector.Connector) *destination.Destination {
	t.Helper()
	enc, err := f.vault.Seal(map[string]any{"api_key": "k"})
	if err != nil {
		t.Fatalf("seal config: %v", err)
	}
	d := &destination.Destination{
		Entity:    entity.New(),
		ID:        id.NewDestinationID(),
		Type:      dt,
		Name:      string(dt),
		Enabled:   true,
		ConfigEnc: enc,
	}
	f.store.destinations[d.ID] = d
	f.registry.Register(dt, c)
	return d
}

func (f *fixture) addEvent(t *testing.T, name string, consent event.Consent) *event.Event {
	t.Helper()
	evt := &event.Event{
		Entity:  entity.New(),
		ID:      id.NewEventID(),
		Name:    name,
		Source:  "web",
		Consent: consent,
		Payload: map[string]any{"email": "user@example.com"},
	}
	f.store.events[evt.ID] = evt
	return evt
}

func newJob(evt *event.Event, intended ...destination.Type) *forward.Job {
	return &forward.Job{
		Entity:      entity.New(),
		ID:          id.NewJobID(),
		EventID:     evt.ID,
		State:       forward.StateQueued,
		Intended:    intended,
		MaxAttempts: forward.DefaultMaxAttempts,
	}
}

func TestProcessCompletesWhenAllAccept(t *testing.T) {
	f := newFixture(t)
	ga4 := &stubConnector{result: connector.Result{OK: true, StatusCode: 204}}
	posthog := &stubConnector{result: connector.Result{OK: true, StatusCode: 200}}
	f.addDestination(t, destination.TypeGA4, ga4)
	f.addDestination(t, destination.TypePostHog, posthog)

	evt := f.addEvent(t, "page_view", event.FullConsent())
	j := newJob(evt, destination.TypeGA4, destination.TypePostHog)

	f.worker.Process(context.Background(), j)

	if j.State != forward.StateCompleted {
		t.Fatalf("state = %s, want completed", j.State)
	}
	if j.CompletedAt == nil {
		t.Error("CompletedAt should be set on completion")
	}
	if ga4.sendCount() != 1 || posthog.sendCount() != 1 {
		t.Errorf("sends = %d/%d, want 1/1", ga4.sendCount(), posthog.sendCount())
	}
	if len(f.store.updated) != 1 {
		t.Errorf("UpdateJob calls = %d, want 1", len(f.store.updated))
	}
}

func TestProcessRetriesOnlyFailedDestinations(t *testing.T) {
	f := newFixture(t)
	ga4 := &stubConnector{result: connector.Result{OK: true, StatusCode: 204}}
	posthog := &stubConnector{result: connector.Result{Error: "connection refused"}}
	f.addDestination(t, destination.TypeGA4, ga4)
	failing := f.addDestination(t, destination.TypePostHog, posthog)

	evt := f.addEvent(t, "page_view", event.FullConsent())
	j := newJob(evt, destination.TypeGA4, destination.TypePostHog)

	f.worker.Process(context.Background(), j)

	if j.State != forward.StateQueued {
		t.Fatalf("state = %s, want queued for retry", j.State)
	}
	if len(j.Pending) != 1 || j.Pending[0] != failing.ID {
		t.Fatalf("Pending = %v, want just the failed destination %s", j.Pending, failing.ID)
	}
	if j.NextAttemptAt.IsZero() {
		t.Error("NextAttemptAt should be scheduled")
	}

	// Second attempt: the recovered destination must not be re-sent to
	// the platform that already accepted.
	posthog.result = connector.Result{OK: true, StatusCode: 200}
	f.worker.Process(context.Background(), j)

	if j.State != forward.StateCompleted {
		t.Fatalf("state after recovery = %s, want completed", j.State)
	}
	if ga4.sendCount() != 1 {
		t.Errorf("already-accepted destination re-sent: %d sends", ga4.sendCount())
	}
	if posthog.sendCount() != 2 {
		t.Errorf("failed destination sends = %d, want 2", posthog.sendCount())
	}
}

func TestProcessExhaustsToFailedAndDLQ(t *testing.T) {
	f := newFixture(t)
	failing := &stubConnector{result: connector.Result{StatusCode: 500, Error: "server error"}}
	f.addDestination(t, destination.TypeMetaCAPI, failing)

	evt := f.addEvent(t, "lead_submitted", event.FullConsent())
	j := newJob(evt, destination.TypeMetaCAPI)

	for i := 0; i < forward.DefaultMaxAttempts; i++ {
		f.worker.Process(context.Background(), j)
	}

	if j.State != forward.StateFailed {
		t.Fatalf("state = %s, want failed after %d attempts", j.State, forward.DefaultMaxAttempts)
	}
	if j.AttemptCount != forward.DefaultMaxAttempts {
		t.Errorf("AttemptCount = %d, want %d", j.AttemptCount, forward.DefaultMaxAttempts)
	}
	if len(f.dlq.pushed) != 1 || f.dlq.pushed[0] != destination.TypeMetaCAPI {
		t.Errorf("DLQ pushes = %v, want one meta_capi entry", f.dlq.pushed)
	}
	if failing.sendCount() != forward.DefaultMaxAttempts {
		t.Errorf("sends = %d, want %d", failing.sendCount(), forward.DefaultMaxAttempts)
	}
}

func TestProcessSuppressesAdDestinationsWithoutAdStorageConsent(t *testing.T) {
	f := newFixture(t)
	ga4 := &stubConnector{result: connector.Result{OK: true}}
	meta := &stubConnector{result: connector.Result{OK: true}}
	f.addDestination(t, destination.TypeGA4, ga4)
	f.addDestination(t, destination.TypeMetaCAPI, meta)

	consent := event.Consent{AnalyticsStorage: event.Granted, AdStorage: event.Denied}
	evt := f.addEvent(t, "lead_submitted", consent)
	j := newJob(evt, destination.TypeGA4, destination.TypeMetaCAPI)

	f.worker.Process(context.Background(), j)

	if j.State != forward.StateCompleted {
		t.Fatalf("state = %s, want completed (suppression is not failure)", j.State)
	}
	if ga4.sendCount() != 1 {
		t.Errorf("analytics destination sends = %d, want 1", ga4.sendCount())
	}
	if meta.sendCount() != 0 {
		t.Errorf("ad destination sends = %d, want 0 without ad_storage consent", meta.sendCount())
	}
}

func TestProcessStripsIdentityWithoutAdUserDataConsent(t *testing.T) {
	f := newFixture(t)
	meta := &stubConnector{result: connector.Result{OK: true}}
	f.addDestination(t, destination.TypeMetaCAPI, meta)

	consent := event.Consent{
		AnalyticsStorage: event.Granted,
		AdStorage:        event.Granted,
		AdUserData:       event.Denied,
	}
	evt := f.addEvent(t, "lead_submitted", consent)
	evt.UserID = "user-9"
	j := newJob(evt, destination.TypeMetaCAPI)

	f.worker.Process(context.Background(), j)

	if meta.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1", meta.sendCount())
	}
	got := meta.sent[0]
	if _, leaked := got.Payload["email"]; leaked {
		t.Error("email should be stripped without ad_user_data consent")
	}
	if got.UserID != "" {
		t.Error("user id should be stripped without ad_user_data consent")
	}
	if _, kept := evt.Payload["email"]; !kept {
		t.Error("stripping must not mutate the stored event")
	}
}

func TestProcessReleasesJobWhenEventMissing(t *testing.T) {
	f := newFixture(t)
	j := &forward.Job{
		Entity:      entity.New(),
		ID:          id.NewJobID(),
		EventID:     id.NewEventID(), // never persisted
		State:       forward.StateQueued,
		Intended:    []destination.Type{destination.TypeGA4},
		MaxAttempts: forward.DefaultMaxAttempts,
	}

	f.worker.Process(context.Background(), j)

	if len(f.store.updated) != 1 {
		t.Fatalf("UpdateJob calls = %d, want 1: the claim must be released", len(f.store.updated))
	}
	if j.State != forward.StateQueued {
		t.Fatalf("state = %s, want queued for retry", j.State)
	}
	if j.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1 (the failure consumes an attempt)", j.AttemptCount)
	}
	if j.LastError == "" {
		t.Error("LastError should record why dispatch could not start")
	}
	if !j.NextAttemptAt.After(time.Now().UTC()) {
		t.Errorf("NextAttemptAt = %v, want a future retry time", j.NextAttemptAt)
	}
}

func TestProcessExhaustsJobWhenEventStaysMissing(t *testing.T) {
	f := newFixture(t)
	j := &forward.Job{
		Entity:      entity.New(),
		ID:          id.NewJobID(),
		EventID:     id.NewEventID(),
		State:       forward.StateQueued,
		Intended:    []destination.Type{destination.TypeGA4},
		MaxAttempts: forward.DefaultMaxAttempts,
	}

	for i := 0; i < forward.DefaultMaxAttempts; i++ {
		f.worker.Process(context.Background(), j)
	}

	if j.State != forward.StateFailed {
		t.Fatalf("state = %s, want failed once the attempt budget is spent", j.State)
	}
	if j.CompletedAt == nil {
		t.Error("CompletedAt should be set on terminal failure")
	}
	if len(f.store.updated) != forward.DefaultMaxAttempts {
		t.Errorf("UpdateJob calls = %d, want one release per attempt", len(f.store.updated))
	}
}

func TestProcessSkipsDisabledDestinationOnRetry(t *testing.T) {
	f := newFixture(t)
	failing := &stubConnector{result: connector.Result{Error: "timeout"}}
	d := f.addDestination(t, destination.TypeSnapCAPI, failing)

	evt := f.addEvent(t, "job_completed", event.FullConsent())
	j := newJob(evt, destination.TypeSnapCAPI)

	f.worker.Process(context.Background(), j)
	if j.State != forward.StateQueued {
		t.Fatalf("state = %s, want queued", j.State)
	}

	// Operator disables the destination between attempts.
	d.Enabled = false
	f.worker.Process(context.Background(), j)

	if j.State != forward.StateCompleted {
		t.Fatalf("state = %s, want completed once the failing destination is disabled", j.State)
	}
	if failing.sendCount() != 1 {
		t.Errorf("disabled destination was sent to on retry: %d sends", failing.sendCount())
	}
}

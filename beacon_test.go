package beacon_test

import (
	"context"
	"errors"
	"testing"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/store/memory"
)

const testVaultKey = "0123456789abcdef0123456789abcdef"

func ctx() context.Context { return context.Background() }

func setup(t *testing.T) (*beacon.Pipeline, *memory.Store) {
	t.Helper()
	s := memory.New()
	p, err := beacon.New(
		beacon.WithStore(s),
		beacon.WithVaultKey(testVaultKey),
	)
	if err != nil {
		t.Fatal(err)
	}
	return p, s
}

func TestNewRequiresStore(t *testing.T) {
	_, err := beacon.New(beacon.WithVaultKey(testVaultKey))
	if !errors.Is(err, beacon.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNewRequiresVaultKey(t *testing.T) {
	_, err := beacon.New(beacon.WithStore(memory.New()))
	if !errors.Is(err, beacon.ErrNoVaultKey) {
		t.Fatalf("expected ErrNoVaultKey, got %v", err)
	}

	_, err = beacon.New(
		beacon.WithStore(memory.New()),
		beacon.WithVaultKey("too-short"),
	)
	if !errors.Is(err, beacon.ErrNoVaultKey) {
		t.Fatalf("expected ErrNoVaultKey for short key, got %v", err)
	}
}

func TestIngestRoutesAnalyticsEvent(t *testing.T) {
	p, s := setup(t)

	res, err := p.Ingest(ctx(), &event.Event{
		Name:   "page_view",
		Source: "web",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Deduped {
		t.Fatal("fresh event reported as duplicate")
	}
	if res.Event.ID.IsNil() {
		t.Fatal("expected event ID to be assigned")
	}

	want := []destination.Type{destination.TypeGA4, destination.TypePostHog}
	if len(res.Intended) != len(want) {
		t.Fatalf("intended: got %v, want %v", res.Intended, want)
	}
	for i, typ := range want {
		if res.Intended[i] != typ {
			t.Fatalf("intended[%d]: got %s, want %s", i, res.Intended[i], typ)
		}
	}

	jobs, err := s.DequeueJobs(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}
	j := jobs[0]
	if j.EventID != res.Event.ID {
		t.Fatal("job does not reference the stored event")
	}
	if j.State != forward.StateQueued {
		t.Fatalf("expected queued, got %s", j.State)
	}
	if j.MaxAttempts != forward.DefaultMaxAttempts {
		t.Fatalf("expected %d max attempts, got %d", forward.DefaultMaxAttempts, j.MaxAttempts)
	}
	if j.Pending != nil {
		t.Fatal("fresh job should have no pending narrowing")
	}
}

func TestIngestConversionEventRoutesBothTiers(t *testing.T) {
	p, s := setup(t)

	res, err := p.Ingest(ctx(), &event.Event{Name: "lead_submitted"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Intended) != len(destination.All()) {
		t.Fatalf("expected all %d destination types, got %v",
			len(destination.All()), res.Intended)
	}

	jobs, _ := s.DequeueJobs(ctx(), 10)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
}

func TestIngestUnroutedEventEnqueuesNothing(t *testing.T) {
	p, s := setup(t)

	res, err := p.Ingest(ctx(), &event.Event{Name: "custom_internal_ping"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Intended) != 0 {
		t.Fatalf("expected no routes, got %v", res.Intended)
	}

	jobs, _ := s.DequeueJobs(ctx(), 10)
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}

	// The event itself is still persisted.
	if _, err := s.GetEvent(ctx(), res.Event.ID); err != nil {
		t.Fatalf("unrouted event not stored: %v", err)
	}
}

func TestIngestRequiresName(t *testing.T) {
	p, _ := setup(t)

	_, err := p.Ingest(ctx(), &event.Event{})
	if !errors.Is(err, beacon.ErrEventNameRequired) {
		t.Fatalf("expected ErrEventNameRequired, got %v", err)
	}
}

func TestIngestDeduplicatesByExternalEventID(t *testing.T) {
	p, s := setup(t)

	first, err := p.Ingest(ctx(), &event.Event{
		Name:            "cta_click",
		ExternalEventID: "client-evt-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	second, err := p.Ingest(ctx(), &event.Event{
		Name:            "cta_click",
		ExternalEventID: "client-evt-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Deduped {
		t.Fatal("expected duplicate to be flagged")
	}
	if second.Event.ID != first.Event.ID {
		t.Fatalf("duplicate returned a different ID: %v vs %v",
			second.Event.ID, first.Event.ID)
	}

	// Only the first submission enqueued work.
	jobs, _ := s.DequeueJobs(ctx(), 10)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job after duplicate, got %d", len(jobs))
	}
}

func TestIngestNormalizesConsent(t *testing.T) {
	p, _ := setup(t)

	res, err := p.Ingest(ctx(), &event.Event{
		Name:    "page_view",
		Consent: event.Consent{AnalyticsStorage: event.Granted},
	})
	if err != nil {
		t.Fatal(err)
	}

	c := res.Event.Consent
	if c.AnalyticsStorage != event.Granted {
		t.Fatal("granted flag lost in normalization")
	}
	if c.AdStorage != event.Denied || c.AdUserData != event.Denied || c.AdPersonalization != event.Denied {
		t.Fatalf("absent flags must normalize to denied, got %+v", c)
	}
}

func TestRecordConversion(t *testing.T) {
	p, s := setup(t)

	cents := int64(48500)
	res, err := p.RecordConversion(ctx(), &event.Conversion{
		Status:     "job_completed",
		ValueCents: &cents,
		Currency:   "USD",
		GCLID:      "gclid-123",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Synthetic event carries the conversion status as its name with full
	// consent, and routes to the conversion tier.
	if res.Event.Name != "job_completed" {
		t.Fatalf("synthetic event name: got %q", res.Event.Name)
	}
	if res.Event.Source != "server" {
		t.Fatalf("synthetic event source: got %q", res.Event.Source)
	}
	if res.Event.Consent != event.FullConsent() {
		t.Fatal("synthetic event must carry full consent")
	}
	if res.Event.GCLID != "gclid-123" {
		t.Fatal("click ID not carried onto synthetic event")
	}
	if v, ok := res.Event.Payload["value_cents"].(int64); !ok || v != 48500 {
		t.Fatalf("value_cents not carried: %v", res.Event.Payload["value_cents"])
	}
	if len(res.Intended) != 6 {
		t.Fatalf("expected 6 conversion destinations, got %v", res.Intended)
	}

	convs, err := s.ListConversions(ctx(), event.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 stored conversion, got %d", len(convs))
	}
	if convs[0].Status != "job_completed" {
		t.Fatalf("stored status: got %q", convs[0].Status)
	}
}

func TestRecordConversionRequiresStatus(t *testing.T) {
	p, _ := setup(t)

	_, err := p.RecordConversion(ctx(), &event.Conversion{})
	if !errors.Is(err, beacon.ErrConversionStatusRequired) {
		t.Fatalf("expected ErrConversionStatusRequired, got %v", err)
	}
}

func TestValidateTrack(t *testing.T) {
	p, _ := setup(t)

	valid := map[string]any{"name": "page_view"}
	if err := p.ValidateTrack(valid); err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}

	invalid := map[string]any{"name": "Page View"}
	if err := p.ValidateTrack(invalid); err == nil {
		t.Fatal("expected rejection of malformed event name")
	}
}

// Package beacon provides a composable marketing event pipeline for Go.
//
// Beacon is a library, not a service. Import it into your application to
// get first-party event ingestion with idempotent dedup, consent-aware
// routing to third-party ad and analytics platforms, durable retries, and a
// replayable dead letter queue.
//
// Key features:
//   - Idempotent ingestion keyed on caller-supplied external event IDs
//   - Static tiered routing: analytics events to GA4/PostHog, conversions
//     additionally to Meta, Google Ads, Microsoft Ads, TikTok, Snap, Pinterest
//   - Per-destination failure isolation with exponential backoff retries
//   - AES-256-GCM sealed destination credentials
//   - HMAC-SHA256 webhook verification for server-side conversions
//   - Composable store pattern with multiple backends (Postgres, SQLite,
//     Redis, Memory)
//
// Quick start:
//
//	p, err := beacon.New(
//	    beacon.WithStore(memoryStore),
//	    beacon.WithVaultKey(key),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p.Start(ctx)
//
//	p.Ingest(ctx, &event.Event{
//	    Name:   "lead_submitted",
//	    Source: "web",
//	    Payload: map[string]any{"form": "contact"},
//	})
package beacon

package beacon

import "errors"

var (
	// ErrNoStore is returned when a pipeline is constructed without a store.
	ErrNoStore = errors.New("beacon: store is required")

	// ErrNoVaultKey is returned when a pipeline is constructed without an
	// encryption key for destination credentials.
	ErrNoVaultKey = errors.New("beacon: vault key is required")

	// ErrEventNameRequired is returned when an ingested event has no name.
	ErrEventNameRequired = errors.New("beacon: event name is required")

	// ErrConversionStatusRequired is returned when a recorded conversion
	// has no status.
	ErrConversionStatusRequired = errors.New("beacon: conversion status is required")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("beacon: event not found")

	// ErrDestinationNotFound is returned when a destination cannot be found.
	ErrDestinationNotFound = errors.New("beacon: destination not found")

	// ErrJobNotFound is returned when a forwarding job cannot be found.
	ErrJobNotFound = errors.New("beacon: forwarding job not found")

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = errors.New("beacon: dlq entry not found")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("beacon: store is closed")

	// ErrMigrationFailed wraps schema migration failures.
	ErrMigrationFailed = errors.New("beacon: migration failed")
)

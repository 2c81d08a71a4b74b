package domain

import "errors"

var (
	ErrStreamNotFound     = errors.New("stream not found")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrSlowSubscriber     = errors.New("subscriber too slow")
	ErrHubStopped         = errors.New("live hub stopped")
	ErrUnexpectedStatus   = errors.New("unexpected resource status")
)

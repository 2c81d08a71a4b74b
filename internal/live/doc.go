// Package live implements the in-process live channel service.
//
// Hub polls the streaming server once per channel and fans each non-empty frame out to every
// subscription of that channel. It is an actor: a single goroutine owns all channel state and is
// driven by a command channel plus a clock ticker, so no mutexes guard the channel map.
//
// Each Subscription owns a ring Buffer (8000 samples, append by default) and a goroutine that
// applies pushed frames to the buffer before emitting them as events. The same Subscription type
// backs the remote centrifuge client.
package live

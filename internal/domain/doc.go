// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (query.go, live.go, resource.go, flight.go, errors.go) hold the shared
// types and the collaborator contracts of the stream dispatcher. No implementation code - just
// contracts. Keeps the dispatcher, the live hub and the adapters free of circular imports.
package domain

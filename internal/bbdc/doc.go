// Package bbdc talks to the BBDC booking back-service.
//
// A Client logs users in and hands out Sessions. A Session carries the
// bearer and course tokens the site expects on every call and exposes the
// slot listing and booking endpoints through a SlotAPI. Listing and auth
// calls are rate limited and retried on transport errors; booking calls
// are sent exactly once.
package bbdc

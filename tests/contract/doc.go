// Package contract replays recorded provider responses through the full
// dispatch path: registry lookup, envelope serialization, credential
// material, transport decode. No network calls are made.
//
// Run with: go test -tags=contract ./tests/contract/...
package contract

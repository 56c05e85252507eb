// Package allowlist loads the set of client IPs admitted by the allow-list
// authenticator.
//
// A Set is an immutable snapshot. Provider holds the current snapshot and can
// replace it when the backing JSON document changes on disk; readers never
// see a partially updated set.
package allowlist

// Package identity implements Cortex's identity foundation.
//
// It defines the User principal, email canonicalization, the user persistence
// boundary consumed by the auth use cases, and the typed store error contract.
package identity

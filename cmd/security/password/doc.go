// Package password provides credential hashing for Cortex.
//
// It wraps bcrypt with a fixed, adaptively-costed work factor and a small
// length policy. Verification never reports WHY a password was rejected;
// callers are responsible for collapsing failures into a generic signal.
package password

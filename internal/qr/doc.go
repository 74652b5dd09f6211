// Package qr validates scanned QR labels and decides whether the
// container they identify may be returned.
//
// Validation is purely cryptographic (HMAC-SHA256 over the code, Base32
// encoded) and never touches the network or the store; the decision
// policy built on top of it consults the backend when reachable and
// falls back to the local store otherwise.
package qr

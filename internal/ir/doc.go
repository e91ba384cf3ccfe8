// Package ir provides the canonical value encoding used for every
// content-addressed identity in bman: input hashes, scenario digests,
// action signatures and evidence fingerprints.
//
// This package imports nothing internal. All other packages that need a
// stable digest go through MarshalCanonical and the Hash* helpers so that
// two runs over byte-identical state always agree.
//
// Key design constraints:
//   - Object keys are ordered by UTF-16 code units (RFC 8785)
//   - Strings are NFC normalized at the serialization boundary
//   - Non-integer numbers are rejected
//   - Every digest is domain separated and versioned
package ir

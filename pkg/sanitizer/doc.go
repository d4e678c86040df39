// Package sanitizer normalizes free-form booking input before validation and storage.
//
// All functions are idempotent: applying them multiple times produces the same
// result. Invalid input is handled by returning a cleaned or empty string, never
// an error.
//
// Normalization includes:
//   - Labels such as room types: collapse whitespace, trim leading/trailing spaces
//   - Free text such as special requests: drop control characters, keep line breaks, cap length
//   - Identifiers: trim and lowercase hex object ids
package sanitizer

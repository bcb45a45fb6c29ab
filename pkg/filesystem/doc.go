// Package filesystem provides filesystem utility methods either not provided
// by the Go standard library or requiring a more careful implementation:
// atomic writes, cross-device-safe renames, directory listing, and advisory
// locking.
package filesystem

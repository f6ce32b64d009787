// Package conv converts integers read from untrusted encodings, such as
// lengths and ordinals in a stored segment body, with bounds checks.
package conv

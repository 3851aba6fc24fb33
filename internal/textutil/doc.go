// Package textutil provides small text-normalization helpers shared across
// the daemon: filesystem-safe filename sanitization and a generic ternary
// helper.
//
// Sanitization replaces or strips characters a destination path cannot
// safely contain, used wherever a media file's stem flows directly into a
// filesystem path segment.
package textutil

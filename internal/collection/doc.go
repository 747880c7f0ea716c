// Package collection holds ordered collection data, the copy-on-write
// change-caching decorator used by collection end-points, change-detection
// strategies, and the user-visible Collection whose data strategy can be
// swapped between end-point-backed and standalone.
package collection

// Package fetch retrieves versioned OS images into the local cache using
// block-level delta transfer when a usable seed exists, falling back to a
// full download otherwise. Completed images are renamed into place
// atomically so a crash never leaves a half-written file looking complete.
package fetch

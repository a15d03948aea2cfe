// Package bootentry publishes per-slot loader entries and maintains the
// default-boot pointer. Both slots' entries always coexist; promotion only
// rewrites the default pointer, which is what makes rollback O(1) and
// immune to storage failures.
package bootentry

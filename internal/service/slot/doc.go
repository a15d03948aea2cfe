// Package slot resolves which of the two root subvolumes is currently
// active by inspecting the live root mount. The result is recomputed on
// every call and never cached across runs.
package slot

// Package deploy writes a fetched image into the inactive slot via a btrfs
// snapshot receive. The active slot is never written under any failure
// path: the engine refuses to target it, scopes every write to the scratch
// mount of the inactive subvolume, and treats each attempt as all-or-nothing
// with no resume of partial receives.
package deploy

// Package prepare makes a host ready for deployments: it checks that the
// EFI system partition and the deployment root are mounted, creates the
// directory layout, seeds the loader configuration and installs the secure
// boot trust chain.
package prepare

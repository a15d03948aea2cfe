// Package boot defines the data model shared by the deployment pipeline:
// root slots, the resolved device identity, the kernel command line, staged
// boot images and loader entries, plus the typed error taxonomy that maps
// every failure to a stable CLI exit code.
package boot

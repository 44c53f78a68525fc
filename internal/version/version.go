// Package version provides version information.
package version

// Version is the current version of varsnap
const Version = "0.1.0"

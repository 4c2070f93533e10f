// Package types defines the package records shared by every stage of an
// installation: repodata records describing what should be installed,
// prefix records describing what is installed, the per-file paths data a
// package ships and the platform it targets.
package types

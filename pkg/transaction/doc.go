// Package transaction computes the operations that turn the packages
// installed in a prefix into a desired set.
package transaction

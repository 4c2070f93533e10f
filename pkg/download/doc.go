// Package download provides the HTTP client used to fetch package archives
// and the retry policies applied around a fetch.
package download

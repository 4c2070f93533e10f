// Package blocking runs blocking filesystem work on a fixed set of worker
// goroutines. Each submitted job hands its outcome back on its own one-shot
// channel.
package blocking

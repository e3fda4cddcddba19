// Package fetch implements the rate-limited batch fetcher.
//
// The fetcher:
//   - Partitions symbols into fixed-size chunks processed by a bounded
//     worker pool
//   - Shares one token-bucket limiter across all workers so the external
//     call rate stays bounded regardless of parallelism
//   - Retries transient and rate-limit failures with linear backoff up to a
//     configured attempt bound
//   - Returns exactly one outcome per input symbol; a failing symbol never
//     aborts the batch
package fetch

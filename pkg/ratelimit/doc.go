// Package ratelimit paces requests to the remote content source.
//
// Two strategies implement Limiter:
//
//   - TokenBucket: bursts up to the per-minute allowance, refilling steadily.
//     Backed by golang.org/x/time/rate.
//   - SlidingWindow: never more than N requests in any trailing window.
//
// Wait honours context cancellation, so a cancelled request never sits in
// the limiter queue.
package ratelimit

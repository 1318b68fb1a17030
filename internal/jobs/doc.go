// Package jobs holds the in-memory job registry at the heart of the daemon:
// admission control under a capacity limit, the single-active-job invariant,
// FIFO queue advancement, bounded per-job and global logs, lazy timeout
// detection on read, and the cooperative cancellation token.
//
// Jobs are deliberately ephemeral; the durable record of what has been
// downloaded lives in the archive package.
package jobs

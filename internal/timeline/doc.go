// Package timeline tracks recording bursts within a meeting. Each
// start/stop pair becomes a session holding a contiguous range of segment
// indices, so the transcript can be mapped back to when it was recorded
// even when capture was paused in between.
package timeline

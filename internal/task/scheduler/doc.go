// Package scheduler registers named daily triggers and computes their next run
// in a fixed timezone.
//
// Execution is delegated to the task engine. The scheduler is responsible only for:
//   - registering and removing schedules by name (at most one per name)
//   - computing next trigger times
//   - enqueueing tasks into the task engine when a trigger fires
package scheduler

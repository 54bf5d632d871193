// Package tasks runs catalog synchronization against the release spreadsheet.
//
// # Protocol
//
// An [Orchestrator] executes one [models.SyncOperation] through
// pending → running (fetching → processing → finalizing) → completed | failed | cancelled:
//
//  1. Fetch the workbook and order its in-scope tabs chronologically
//  2. For each tab, check for cancellation, extract rows and import every album not already in
//     the catalog, persisting progress every few rows
//  3. Check for cancellation once more, then write one [models.SyncRecord] and the terminal status
//
// Faults are routed through [Classify], which returns an explicit [Decision]: abort the run, skip
// the tab or skip the row. Users only ever see the decision's categorized message; the underlying
// error is logged.
//
// # Workers
//
// [Runner] owns a single worker goroutine fed by a channel. [Runner.Trigger] returns as soon as the
// operation is stored, and the store refuses a second pending or running operation. Cancellation is
// cooperative: [Runner.Cancel] flips the stored status and the worker observes it at its next
// checkpoint, so a tab in progress always finishes.
//
// [Scheduler] triggers runs from a cron expression.
//
// # Progress Reporting
//
// Runs optionally emit [ProgressUpdate] values on a channel. Sends use select with default so a slow
// listener never blocks the worker.
package tasks

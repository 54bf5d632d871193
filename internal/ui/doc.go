// Package ui implements an interactive sync dashboard using bubbletea's Elm architecture.
//
// The TUI moves between four views:
//  1. [DashboardView] : Last run and the sync history
//  2. [ConfirmView] : Confirm starting a sync
//  3. [SyncView] : Live progress of the active run
//  4. [ResultView] : Outcome of the watched run
//
// The [Model] drives any [Backend] (a local runner or a remote server) and polls its status while a run
// is active. A local runner's progress channel can be attached with [WithUpdates] to surface tab failures
// as they happen.
//
// Keyboard navigation uses vim-style bindings (j/k, s, c, esc, y/n, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui

// Package preflight provides readiness checks for the external services,
// programs and filesystem paths that meetcap depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results and the dependency snapshot at startup,
//     so a misconfigured host is visible before the first meeting starts.
//   - The CLI "meetcap doctor" command renders every check as a table.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight

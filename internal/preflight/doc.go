// Package preflight provides readiness checks for the backend and the local
// paths mvdown writes to.
//
// These checks run in two contexts:
//   - The CLI "mvdown health" command runs RunAll and renders every result.
//   - "mvdown fetch" calls CheckDirectoryAccess before writing a file.
//
// Each check returns a Result rather than an error so callers can show a full
// report even when several checks fail.
package preflight

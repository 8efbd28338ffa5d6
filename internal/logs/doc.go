// Package logs reads the JSON log file written by the CLI.
//
// Last returns the trailing lines of the file with bounded memory, Follow polls
// for lines appended after an offset, and Format renders a JSON record as a
// single readable line. Records can be filtered by job id and level so one
// download's history can be pulled out of a long log.
package logs

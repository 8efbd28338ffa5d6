// Package fetch saves finished files from the backend into the local download
// directory.
//
// Files are streamed into a temporary file next to the destination and renamed
// into place once complete, so an interrupted transfer never leaves a partial
// file under the final name. Audio files are inspected afterwards so the CLI
// can show their embedded title and artist.
package fetch

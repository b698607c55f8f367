// Command meetiq is the recording upload client: it registers recordings,
// captures chunk files from a recorder's output directory, uploads them to
// the meetIQ backend with receipt verification, and polls the analysis job
// until the meeting summary is ready.
package main

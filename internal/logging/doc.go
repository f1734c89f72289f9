// Package logging sets up structured JSON logging to a size-rotated file
// under the workspace directory, optionally teed to stderr, and reads those
// files back for the logs command.
package logging

// Package utils provides presentation helpers shared by the API and the
// command line: distance and duration phrasing and schedule adherence text.
package utils

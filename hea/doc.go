// Package hea talks to the HEA real-time API: the XML vehicle feed and the
// per-stop JSON arrivals feed.
//
// Vehicle records come back as strings. The client converts them into
// tracking.Report values, reading "null_trip" as no trip and last_message
// ("M/D/YYYY h:mm:ss AM") in the feed timezone. A last_message that does
// not parse becomes the zero time rather than failing the whole fetch.
package hea

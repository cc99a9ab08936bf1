// Package instagram talks to Instagram's web endpoints.
//
// The Client is built on resty and carries the run's session: user agent,
// cookies and proxy. It posts timeline queries to the private GraphQL
// endpoint, fetches HTML pages, and streams media files. Non-200 responses
// come back as *Error with the status code attached.
//
// PostNode wraps the raw timeline node with gson so only the handful of
// fields igfetch actually reads need to be known.
package instagram

// Package api exposes the operation registry over HTTP.
//
// Every registered operation is served at
// /api/speedtest/service/{endpoint} for GET and POST. Handlers call the
// dispatcher once per request and write the worker output back unmodified.
// Dispatch errors map onto status codes:
//
//	unknown operation            404
//	argument mismatch / invalid  400
//	worker unavailable           503
//	worker failure               502 (body is the worker output)
package api

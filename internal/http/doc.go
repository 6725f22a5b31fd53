// Package httpapp serves the blog over HTTP: server-rendered pages for
// browsers, a JSON API under /api, and operational endpoints (/healthz,
// /metrics, /openapi.yaml, /docs/).
//
// Every request passes through request-ID, panic recovery and access-log
// middleware. Matched routes additionally resolve the caller from a bearer
// token or the session cookie before the handler runs; handlers pass that
// caller to the content service, which applies the access gate.
package httpapp

// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// and the task service, translating HTTP concerns to admission, status,
// artifact serving and health operations.
package api

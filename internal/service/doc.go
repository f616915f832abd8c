// Package service holds the application operations behind the HTTP surface:
// task admission, status lookup, operator requeue and health reporting.
package service

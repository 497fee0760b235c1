// Package auth guards the HTTP API with an optional static API key check.
package auth

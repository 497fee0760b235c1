// Package api exposes the HTTP interface for wallets, wallet actions, agents
// and rooms, plus health and Prometheus endpoints.
package api

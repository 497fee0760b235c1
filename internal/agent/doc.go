// Package agent manages the locally tracked AI agents. Every local record
// mirrors an agent that already exists in the external agent runtime; the
// service creates the remote agent first and only then persists the mirror.
package agent

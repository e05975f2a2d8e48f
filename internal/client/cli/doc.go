// Package cli provides the interactive greenmission command-line client.
//
// It wires configuration, local storage, the identity provider, the session
// store and wallet sync, and serves an interactive REPL in which "open"
// plays the role of page navigation: protected paths are rendered through a
// route guard that redirects to sign-in or to the user's role home.
//
// Background jobs: a connectivity watcher pinging the gRPC health endpoint
// and a cron-scheduled profile refresh while signed in.
package cli

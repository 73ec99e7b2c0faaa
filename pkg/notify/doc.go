// Package notify defines the Notifier the governance components use to tell
// tenants and users about expiries and permission changes. Implementations
// are injected; the engine never reaches for a global dispatcher.
package notify

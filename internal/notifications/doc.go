// Package notifications delivers operator alerts through ntfy.
//
// The topic URL comes from config.toml (notifications.ntfy_topic); without one
// every call is a no-op. Listener turns committed reconciler transitions into
// ready and failed notifications, honouring the per-event toggles.
package notifications

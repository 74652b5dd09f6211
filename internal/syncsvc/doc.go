// Package syncsvc keeps the kiosk's local state aligned with the remote
// backend.
//
// The service runs inline on the controller's ~1 Hz tick and maintains:
//   - A one-shot initial sync at startup that replaces the local container
//     catalog and clears the audit log
//   - A periodic healthcheck reporting version and failure counts, which
//     also carries the backend's device-active flag
//   - A periodic regular sync uploading locally-changed containers and
//     audit logs and replacing the catalog from the response
//   - A secure-mode watchdog that locks the kiosk down when the backend
//     has been unreachable for more than two days
//
// Mode changes (device active/inactive, secure-mode on/off) are delivered
// to the sequence engine through one-way callbacks registered at
// construction.
package syncsvc

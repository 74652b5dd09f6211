// Package backend is the HTTP client for the three endpoints the kiosk
// controller calls on the remote backend: healthcheck, sync, and
// container-validate. It distinguishes transport failure (returned as a
// Go error, triggering offline fallback / failure counting upstream) from
// a semantic rejection carried in the JSON body (returned as a typed
// result with no error, which callers must not fall back on).
package backend

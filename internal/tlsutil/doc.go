// Package tlsutil holds the hardened TLS settings (TLS 1.2+, AEAD suites only)
// shared by the generator HTTP client, the API server and Redis connections.
package tlsutil

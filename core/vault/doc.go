// Package vault encrypts credentials at rest.
//
// Values are sealed with AES-256-GCM and tagged with a fixed format prefix
// ("enc:v1:"). Decrypt detects the prefix and passes legacy unencrypted
// values through unchanged, so a deployment can turn encryption on without
// migrating existing connection records first.
package vault

// Package auth issues and validates the bearer tokens that guard the HTTP API.
//
// Tokens are HS256 JWTs carrying a subject and a scope. A viewer token may
// read devices and open the frame stream; an operator token may also create
// and remove devices and clear effects.
//
// Tokens are validated by signature only; there is no session store.
package auth

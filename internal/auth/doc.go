// Package auth verifies the access tokens the orchestration service issues.
//
// Tokens are HS256 JWTs carrying the user id, username, role (a string or a
// list) and a sessionId that tells separate logins apart. The gateway keeps
// no users of its own: a valid signature is the whole check, and role
// membership decides admin-only routes.
package auth

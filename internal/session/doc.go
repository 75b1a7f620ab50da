// Package session tracks authenticated push connections and enforces a
// single login per user.
//
// The websocket handler verifies the access token before upgrading, then
// hands the decoded Identity and the connection to Manager.Accept. A second
// login (a different SessionID) by an ordinary user sends force-logout to
// the first and closes it. Administrators can end sessions by user, by a
// list of users, by role or all at once, always sparing excluded roles and
// themselves.
package session

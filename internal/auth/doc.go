// Package auth provides user accounts and token handling for Greenhouse Core.
//
// Accounts are identified by login and authenticated with Argon2id password
// hashes stored in PHC string format. Sessions are stateless: a signed HS256
// JWT carries the user ID and login, and every request is authorised by
// validating that token alone. No session state is held in the service.
//
// The package also tracks each user's favourite greenhouse, the one their
// dashboard opens on. The pointer is cleared when that greenhouse dissolves.
package auth

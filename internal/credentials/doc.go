// Package credentials holds the API credentials domain: validation rules,
// bcrypt password hashing and the Service used by the HTTP API, the
// auth-check endpoint and the management CLI.
package credentials

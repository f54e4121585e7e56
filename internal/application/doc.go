// Package application provides application initialization and dependency wiring.
// It encapsulates the creation of storage, the credentials service, the API
// router, the auth-check handler and the HTTP server, making the main package
// cleaner and more focused on CLI parsing and orchestration.
package application

// Package kinds registers the import kinds with the core registry.
// Import it for side effects wherever sessions are created.
package kinds

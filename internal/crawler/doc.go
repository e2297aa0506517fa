// Package crawler holds the types, interfaces and error taxonomy shared by the
// collection walker, resource parser, HTTP client and orchestrator.
package crawler

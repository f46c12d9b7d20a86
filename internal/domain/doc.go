// Package domain holds the core model types and collaborator interfaces of
// the reputation engine. It has no dependencies on other internal packages.
package domain

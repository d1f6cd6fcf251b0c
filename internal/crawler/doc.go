// Package crawler defines the core types shared by the opinion acquisition
// engine: listing candidates, extraction rules and their healing proposals,
// plus the collaborator interfaces implemented by storage adapters.
package crawler

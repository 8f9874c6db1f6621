// Package logging provides the structured JSON logger used across the
// replica set. Every component derives a child logger carrying its
// component name so that election, replication and client traffic can be
// filtered apart.
package logging

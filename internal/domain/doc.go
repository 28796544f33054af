// Package domain holds the core traffic-count types and pure logic: canonical
// enumerations for directional and yes/no fields, count records and their
// natural keys, site headers, and the error kinds shared across the engine.
// It has no storage or transport dependencies.
package domain

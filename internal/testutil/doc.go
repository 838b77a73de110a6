// Package testutil contains helper builders and recorders used across tests
// to reduce boilerplate when constructing engine values (classes, enums) and
// asserting on the results a stream delivers. Not intended for production
// usage.
package testutil

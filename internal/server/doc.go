// Package server hosts the Fiber HTTP service and its middleware chain:
// panic recovery, request ids, access logging and JSON error rendering.
// Route registration lives in the routes subpackage so handlers receive their
// dependencies (store, logger, metrics registry) explicitly instead of through
// globals.
package server

// Package server hosts the Fiber HTTP service, request middleware chain, and
// source registry glue that maps dashboard data routes onto the freshness
// cache. It bootstraps Fiber, attaches logging and error middlewares, injects
// the SourceRegistry built from config, and exposes router constructors that
// other packages (main, tests) can reuse. Future phases may extend this
// package with TLS, metrics endpoints, or admin surfaces, so keep exports
// narrow and accept explicit dependencies.
package server

// Package swr implements the in-memory stale-while-revalidate store that
// backs the dashboard data routes. A Cache serves cached values immediately
// while refreshing stale entries in the background, collapses concurrent
// fetches for the same key into a single upstream call, and notifies
// registered subscribers after every data change. Values are held only for
// the lifetime of the process; a periodic sweep removes entries once they
// age past the cache window.
package swr

// Package dag implements the directed acyclic graph used to order module
// resolution. The graph is built once from declared module inputs and
// checked for cycles before any module implementation runs.
package dag

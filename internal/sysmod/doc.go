// Package sysmod defines the built-in configuration modules: the typed
// option surface of a system build (system identity, boot sizing, hardware
// drivers, networking, users, platform features) and the implementations
// that contribute generated files and boot scripts to activation.
//
// Module outputs follow a small contribution convention: an output object
// may carry "files", "scripts", "dirs" and "symlinks" attributes, which the
// activation compiler collects across all modules in sorted path order.
package sysmod

//go:build antdebug

package dispatch

// debugBuild makes contract violations panic.
const debugBuild = true

//go:build !antdebug

package dispatch

const debugBuild = false

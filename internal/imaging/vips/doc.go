// Package vips is the libvips imaging backend. It is compiled only with the
// govips build tag and cgo enabled.
package vips

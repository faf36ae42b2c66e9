//go:build tools
// +build tools

// Package gocollab pins the code generators run by `go generate`.
package gocollab

import (
	_ "go.uber.org/mock/mockgen"
)

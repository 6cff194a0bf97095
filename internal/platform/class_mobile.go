//go:build android || ios

package platform

const current = Mobile

// Package platform classifies the build target. The class is fixed at
// compile time through build tags and drives which capabilities the
// bootstrapper registers.
package platform

import "fmt"

type Class int

const (
	Desktop Class = iota
	Mobile
)

// Classes lists every known class in declaration order.
func Classes() []Class {
	return []Class{Desktop, Mobile}
}

func (c Class) String() string {
	switch c {
	case Desktop:
		return "desktop"
	case Mobile:
		return "mobile"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Current returns the class this binary was compiled for.
func Current() Class {
	return current
}

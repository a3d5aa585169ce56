package config

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeProduction Mode = "production"
	ModeTesting    Mode = "testing"
	ModeDemo       Mode = "demo"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeProduction:
		return ModeProduction, nil
	case ModeTesting:
		return ModeTesting, nil
	case ModeDemo:
		return ModeDemo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// baseFolder is the data folder name without the testing date suffix.
func (m Mode) baseFolder() string {
	if m == ModeDemo {
		return ""
	}
	return string(m)
}

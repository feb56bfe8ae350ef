// Package models defines data structures shared by the finder's components.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidBulletinID is returned when a string is not in msXX-XXX form.
var ErrInvalidBulletinID = errors.New("invalid bulletin id")

var bulletinPattern = regexp.MustCompile(`(?i)^ms\d\d-\d\d\d$`)

// BulletinID is a canonical, lowercase advisory identifier such as ms15-100.
type BulletinID string

// ParseBulletinID validates s and returns its canonical form.
func ParseBulletinID(s string) (BulletinID, error) {
	if !bulletinPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBulletinID, s)
	}
	return BulletinID(strings.ToLower(s)), nil
}

func (b BulletinID) String() string {
	return string(b)
}

// CatalogEntry is one option of the advisory search product dropdown.
type CatalogEntry struct {
	Value string
	Label string
}

package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Profile limits.
const (
	MaxNameRunes    = 80
	MaxSkills       = 20
	MaxSkillRunes   = 40
	MaxContactRunes = 200
)

// Profile is the user-editable part of a check-in after normalization.
type Profile struct {
	Name          string
	Skills        []string
	Communication *string
}

// ProfileInput is a profile as submitted. Skills may arrive either as a
// list or as a single comma-separated string (or both).
type ProfileInput struct {
	Name          string
	Skills        []string
	SkillsCSV     string
	Communication string
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizeProfile cleans in and validates the result. Failures wrap
// ErrInvalidProfile.
func NormalizeProfile(in ProfileInput) (Profile, error) {
	name := cleanText(in.Name)
	if name == "" {
		return Profile{}, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		return Profile{}, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidProfile, MaxNameRunes)
	}

	raw := append([]string(nil), in.Skills...)
	if in.SkillsCSV != "" {
		raw = append(raw, strings.Split(in.SkillsCSV, ",")...)
	}
	// a Caser is stateful; one per call
	fold := cases.Fold()
	skills := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		s = cleanText(s)
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s) > MaxSkillRunes {
			return Profile{}, fmt.Errorf("%w: skill %q exceeds %d characters", ErrInvalidProfile, s, MaxSkillRunes)
		}
		key := fold.String(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, s)
	}
	if len(skills) > MaxSkills {
		return Profile{}, fmt.Errorf("%w: at most %d skills allowed", ErrInvalidProfile, MaxSkills)
	}

	var contact *string
	if c := strings.TrimSpace(in.Communication); c != "" {
		if utf8.RuneCountInString(c) > MaxContactRunes {
			return Profile{}, fmt.Errorf("%w: contact exceeds %d characters", ErrInvalidProfile, MaxContactRunes)
		}
		contact = &c
	}

	return Profile{Name: name, Skills: skills, Communication: contact}, nil
}

func cleanText(s string) string {
	return norm.NFC.String(whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " "))
}

// ValidateCoordinates returns ErrInvalidCoordinates when lat/lon are out of range.
func ValidateCoordinates(lat, lon float64) error {
	if !(Coordinates{Latitude: lat, Longitude: lon}).Valid() {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, lat, lon)
	}
	return nil
}

package models

import "strings"

// Category is one of the six fixed challenge domains
type Category string

const (
	CategoryLearning     Category = "Learning"
	CategoryHealth       Category = "Health"
	CategoryPublishing   Category = "Publishing"
	CategoryCreative     Category = "Creative"
	CategoryBusiness     Category = "Business"
	CategoryRelationship Category = "Relationship"
)

// Categories lists every category in declaration order.
// Rule matching walks this order, so it is significant.
var Categories = []Category{
	CategoryLearning,
	CategoryHealth,
	CategoryPublishing,
	CategoryCreative,
	CategoryBusiness,
	CategoryRelationship,
}

var categoryLabels = map[Category]string{
	CategoryLearning:     "学習系",
	CategoryHealth:       "健康系",
	CategoryPublishing:   "発信系",
	CategoryCreative:     "創作系",
	CategoryBusiness:     "ビジネス系",
	CategoryRelationship: "人間関係系",
}

// Label returns the Japanese label shown to users and used in prompts
func (c Category) Label() string {
	return categoryLabels[c]
}

// Valid reports whether c is one of the six categories
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory resolves a category from either its English name or its
// Japanese label. Surrounding whitespace is ignored; anything else is invalid.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) || s == categoryLabels[c] {
			return c, true
		}
	}
	return "", false
}

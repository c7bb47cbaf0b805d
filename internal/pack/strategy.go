package pack

import "strings"

// appendStrategy names one way of retrying a failed append: which emoji
// to attach on that pass.
type appendStrategy struct {
	name  string
	emoji func(original string) string
}

// appendStrategies is the ordered retry ladder for appends. The first
// pass keeps the template's own emoji; later passes substitute neutral
// glyphs in case the original was what the platform choked on.
var appendStrategies = []appendStrategy{
	{name: "original", emoji: func(original string) string { return original }},
	{name: "grin", emoji: func(string) string { return "😀" }},
	{name: "thumbs_up", emoji: func(string) string { return "👍" }},
	{name: "fire", emoji: func(string) string { return "🔥" }},
}

// InvalidClassifier decides whether an append or create error means the
// pack container itself is unusable, as opposed to a problem with the
// single item.
type InvalidClassifier func(err error) bool

var containerInvalidFragments = []string{
	"stickerset_invalid",
	"invalid sticker set",
	"sticker set name",
	"sticker_set_invalid",
}

// DefaultInvalidClassifier matches the container-level failure
// phrasings Telegram is known to return. Matching is lexical, so an
// unseen phrasing falls through to the per-item retry path; deployments
// can plug in a stricter classifier.
func DefaultInvalidClassifier(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range containerInvalidFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// Package detect classifies uploaded images by their file name.
//
// Nothing here looks at pixels. A file name either carries a look id
// ("look2-first.png"), a gender keyword ("woman_street.jpg") or neither.
package detect

import (
	"path"
	"regexp"
	"strings"

	"github.com/okian/unitry/internal/domain/catalog"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Reason says which rule produced a Result.
type Reason string

const (
	ReasonLook    Reason = "look"
	ReasonGender  Reason = "gender_keyword"
	ReasonNoMatch Reason = "no_match"
)

// Result is the outcome of Classify. Gender is empty when nothing matched.
type Result struct {
	FileName string         `json:"file_name"`
	Gender   catalog.Gender `json:"gender,omitempty"`
	Look     string         `json:"look,omitempty"`
	Matched  bool           `json:"matched"`
	Reason   Reason         `json:"reason"`
}

var lookPattern = regexp.MustCompile(`look(\d+)(-[a-z0-9]+)?`)

// woman keywords come first: "woman" contains "man".
var (
	womanKeywords = []string{"woman", "women", "female", "girl", "女"}
	manKeywords   = []string{"man", "men", "male", "boy", "男"}
)

// Normalize returns the folded base name of fileName without its extension.
func Normalize(fileName string) string {
	name := strings.ReplaceAll(fileName, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	// Casers keep state and must not be shared between goroutines.
	return cases.Fold().String(norm.NFKC.String(name))
}

// Classify maps fileName to a look, falling back to gender keywords.
func Classify(fileName string) Result {
	res := Result{FileName: fileName, Reason: ReasonNoMatch}
	key := Normalize(fileName)
	if key == "" {
		return res
	}

	if look, ok := matchLook(key); ok {
		res.Look = look.ID
		res.Gender = look.Gender
		res.Matched = true
		res.Reason = ReasonLook
		return res
	}

	if g, ok := matchGender(key); ok {
		res.Gender = g
		res.Matched = true
		res.Reason = ReasonGender
		if look, err := catalog.DefaultLook(g); err == nil {
			res.Look = look.ID
		}
	}
	return res
}

func matchLook(key string) (catalog.Look, bool) {
	for _, m := range lookPattern.FindAllStringSubmatch(key, -1) {
		if look, err := catalog.LookByID(m[0]); err == nil {
			return look, true
		}
		prefix := "look" + m[1] + "-"
		for _, id := range catalog.LookIDs() {
			if strings.HasPrefix(id, prefix) {
				look, _ := catalog.LookByID(id)
				return look, true
			}
		}
	}
	return catalog.Look{}, false
}

func matchGender(key string) (catalog.Gender, bool) {
	for _, kw := range womanKeywords {
		if strings.Contains(key, kw) {
			return catalog.Woman, true
		}
	}
	for _, kw := range manKeywords {
		if strings.Contains(key, kw) {
			return catalog.Man, true
		}
	}
	return "", false
}

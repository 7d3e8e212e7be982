// Package catalog holds the fixed outfit and look tables shown by the demo.
//
// The tables are built once at init and never mutated; accessors return
// copies so callers can decorate entries (labels, prefixed URLs) freely.
package catalog

import (
	"errors"
	"path"
	"sort"
	"strings"
)

// Gender selects one of the two demo asset sets.
type Gender string

const (
	Man   Gender = "man"
	Woman Gender = "woman"
)

// ErrUnknownGender is returned by ParseGender for anything but man/woman.
var ErrUnknownGender = errors.New("unknown gender")

// ErrUnknownLook is returned by LookByID for ids missing from the table.
var ErrUnknownLook = errors.New("unknown look")

// ParseGender accepts "man" or "woman" in any case, surrounding space ignored.
func ParseGender(s string) (Gender, error) {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case Man:
		return Man, nil
	case Woman:
		return Woman, nil
	}
	return "", ErrUnknownGender
}

// Image is a hard-coded asset and its caption.
type Image struct {
	Label string `json:"label"`
	Path  string `json:"image"`
}

// FileName is the base name used as key into label.json.
func (i Image) FileName() string { return path.Base(i.Path) }

// Look is one complete demo image set.
type Look struct {
	ID         string  `json:"id"`
	Gender     Gender  `json:"gender"`
	Chosen     Image   `json:"chosen"`
	Categories []Image `json:"categories"`
	Final      Image   `json:"final"`
}

// Category slot captions.
const (
	SlotHat     = "帽子"
	SlotTop     = "上衣"
	SlotPants   = "裤子"
	SlotBottoms = "下装"
)

var (
	categories = map[Gender][]Image{
		Man: {
			{Label: SlotHat, Path: "/assets/outfits_man/hat1.jpg"},
			{Label: SlotTop, Path: "/assets/outfits_man/cloth1.jpg"},
			{Label: SlotPants, Path: "/assets/outfits_man/pants1.jpg"},
		},
		Woman: {
			{Label: SlotHat, Path: "/assets/outfits_woman/hat2.jpg"},
			{Label: SlotTop, Path: "/assets/outfits_woman/cloth2.jpg"},
			{Label: SlotBottoms, Path: "/assets/outfits_woman/sp2.jpg"},
		},
	}

	chosen = map[Gender]Image{
		Man:   {Label: "男装选择", Path: "/assets/outfits_man/chosen_cloth1.jpg"},
		Woman: {Label: "女装选择", Path: "/assets/outfits_woman/chosen_cloth2.jpg"},
	}

	finals = map[Gender]Image{
		Man:   {Label: "男装效果", Path: "/assets/outfits_man/look1-all.jpg"},
		Woman: {Label: "女装效果", Path: "/assets/outfits_woman/look2-all.jpg"},
	}

	placeholderSlots = []string{SlotHat, SlotTop, SlotPants}

	looks = map[string]Look{}

	defaultLook = map[Gender]string{
		Man:   "look1-first",
		Woman: "look2-first",
	}
)

func init() {
	for g, id := range defaultLook {
		looks[id] = Look{
			ID:         id,
			Gender:     g,
			Chosen:     chosen[g],
			Categories: categories[g],
			Final:      finals[g],
		}
	}
}

// Categories returns the recommendation slots for g.
func Categories(g Gender) []Image {
	return append([]Image(nil), categories[g]...)
}

// Chosen returns the user-selected garment image for g.
func Chosen(g Gender) (Image, bool) {
	img, ok := chosen[g]
	return img, ok
}

// Final returns the final look image for g.
func Final(g Gender) (Image, bool) {
	img, ok := finals[g]
	return img, ok
}

// PlaceholderSlots returns the slot captions rendered when no gender is known.
func PlaceholderSlots() []string {
	return append([]string(nil), placeholderSlots...)
}

// LabelFile is the label sidecar path for g, relative to the site root.
func LabelFile(g Gender) string {
	return "/assets/outfits_" + string(g) + "/label.json"
}

// LookByID returns a copy of the look registered under id.
func LookByID(id string) (Look, error) {
	l, ok := looks[id]
	if !ok {
		return Look{}, ErrUnknownLook
	}
	l.Categories = append([]Image(nil), l.Categories...)
	return l, nil
}

// DefaultLook returns the look used when only the gender is known.
func DefaultLook(g Gender) (Look, error) {
	id, ok := defaultLook[g]
	if !ok {
		return Look{}, ErrUnknownGender
	}
	return LookByID(id)
}

// LookIDs returns all registered look ids in lexical order.
func LookIDs() []string {
	ids := make([]string, 0, len(looks))
	for id := range looks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

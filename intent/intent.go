package intent

import (
	"regexp"
	"strings"
)

// Garment categories the generator understands.
const (
	CategoryTop    = "top"
	CategoryBottom = "bottom"
	CategoryShoes  = "shoes"
)

// Slot names in the fixed prompting order.
const (
	SlotOccasion = "occasion"
	SlotStyle    = "style"
	SlotCategory = "category"
)

// LookFields is the partial slot set extracted from one user turn.
// Empty string means the slot was not recognized: never guessed.
type LookFields struct {
	Occasion string
	Style    string
	Category string
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// Normalize lowercases and strips Spanish accents so the keyword rules
// below can stay plain ASCII.
func Normalize(text string) string {
	return accentReplacer.Replace(strings.ToLower(strings.TrimSpace(text)))
}

var creationIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(crear?|crea(me)?|haz(me)?|genera(r|me)?|disena(r|me)?|quiero|necesito|arma(me)?)\b.{0,40}\b(look|outfit|prenda|conjunto|ropa|atuendo)\b`),
	regexp.MustCompile(`\b(crear?|crea(me)?|haz(me)?|genera(r|me)?|disena(r|me)?|quiero|necesito|arma(me)?)\b.{0,40}\b(camisa|camiseta|blusa|remera|sueter|hoodie|chaqueta|campera|pantalon(es)?|jeans|falda|pollera|shorts|zapatos|zapatillas|botas|tenis|tacones|sandalias)\b`),
	regexp.MustCompile(`\b(look|outfit|prenda|conjunto|atuendo)\b.{0,20}\bnuev[oa]\b`),
	regexp.MustCompile(`\bno tengo (nada )?(que|para) poner(me)?\b`),
	regexp.MustCompile(`\b(create|make|generate|design)\b.{0,40}\b(look|outfit|garment|clothes|piece)\b`),
	regexp.MustCompile(`\bnew (look|outfit|garment)\b`),
}

var editIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(cambia(lo|la|r)?|modifica(lo|la|r)?|ajusta(lo|la|r)?|edita(lo|la|r)?|ponle|quitale|agregale|hazl[oa])\b`),
	regexp.MustCompile(`\b(mas|menos)\b.{0,20}\b(corto|largo|ajustado|suelto|claro|oscuro|formal|casual)\b`),
	regexp.MustCompile(`\b(change|edit|adjust|modify|tweak)\b`),
	regexp.MustCompile(`\bmake it\b`),
	regexp.MustCompile(`\botro color\b|\ben (otro|color)\b|\banother color\b`),
}

var affirmativeWords = []string{
	"si", "sip", "dale", "claro", "vale", "obvio", "sale", "va", "bueno",
	"confirmo", "confirmar", "adelante", "de una", "listo", "perfecto",
	"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "go ahead",
}

var negativeWords = []string{
	"no", "nop", "nope", "nah", "cancelar", "cancela", "cancelalo",
	"mejor no", "no gracias", "todavia no", "cancel", "not now", "never mind",
}

// slotRule maps a keyword pattern to a slot and its canonical value. The
// table is ordered: earlier rules win when a turn matches several keywords
// for the same slot.
type slotRule struct {
	slot    string
	value   string
	pattern *regexp.Regexp
}

func wordRule(slot, value string, words ...string) slotRule {
	return slotRule{
		slot:    slot,
		value:   value,
		pattern: regexp.MustCompile(`(^|[^a-z])(` + strings.Join(words, "|") + `)([^a-z]|$)`),
	}
}

var slotRules = []slotRule{
	// occasion
	wordRule(SlotOccasion, "oficina", "oficina", "office"),
	wordRule(SlotOccasion, "trabajo", "trabajo", "work", "laboral"),
	wordRule(SlotOccasion, "fiesta", "fiesta", "party", "antro", "boliche"),
	wordRule(SlotOccasion, "boda", "boda", "casamiento", "wedding"),
	wordRule(SlotOccasion, "cita", "cita", "date"),
	wordRule(SlotOccasion, "playa", "playa", "beach"),
	wordRule(SlotOccasion, "viaje", "viaje", "travel", "vacaciones"),
	wordRule(SlotOccasion, "deporte", "deporte", "gym", "gimnasio", "entrenar"),
	wordRule(SlotOccasion, "graduacion", "graduacion", "graduation"),
	// style
	wordRule(SlotStyle, "formal", "formal", "elegante", "elegant", "dressy"),
	wordRule(SlotStyle, "casual", "casual", "relajado", "informal"),
	wordRule(SlotStyle, "minimalista", "minimalista", "minimal", "minimalist"),
	wordRule(SlotStyle, "urbano", "urbano", "urban", "street", "streetwear"),
	wordRule(SlotStyle, "deportivo", "deportivo", "sporty", "athleisure"),
	wordRule(SlotStyle, "vintage", "vintage", "retro"),
	wordRule(SlotStyle, "bohemio", "bohemio", "boho"),
	wordRule(SlotStyle, "clasico", "clasico", "classic"),
	wordRule(SlotStyle, "moderno", "moderno", "modern", "chic"),
	// category
	wordRule(SlotCategory, CategoryTop, "camisa", "camiseta", "blusa", "remera",
		"polo", "sueter", "sweater", "hoodie", "buzo", "chaqueta", "campera",
		"top", "shirt", "tshirt", "blouse", "jacket"),
	wordRule(SlotCategory, CategoryBottom, "pantalon", "pantalones", "jeans",
		"falda", "shorts", "bermuda", "pollera", "leggings", "pants", "skirt",
		"trousers", "bottom"),
	wordRule(SlotCategory, CategoryShoes, "zapatos", "zapatillas", "tenis",
		"botas", "tacones", "sandalias", "shoes", "sneakers", "boots", "heels",
		"sandals"),
}

func matchAny(patterns []*regexp.Regexp, normalized string) bool {
	for _, p := range patterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

func containsWord(words []string, normalized string) bool {
	for _, w := range words {
		if normalized == w {
			return true
		}
		if strings.HasPrefix(normalized, w+" ") || strings.HasPrefix(normalized, w+",") ||
			strings.HasSuffix(normalized, " "+w) || strings.Contains(normalized, " "+w+" ") {
			return true
		}
	}
	return false
}

// DetectLookCreationIntent reports whether the text asks to produce a new
// garment or look.
func DetectLookCreationIntent(text string) bool {
	return matchAny(creationIntentPatterns, Normalize(text))
}

// DetectGarmentEditIntent reports whether the text asks to modify an
// already generated item.
func DetectGarmentEditIntent(text string) bool {
	return matchAny(editIntentPatterns, Normalize(text))
}

// IsNegative wins over IsAffirmative when both vocabularies match, so
// "no, mejor si" is treated as a rejection.
func IsNegative(text string) bool {
	return containsWord(negativeWords, Normalize(text))
}

func IsAffirmative(text string) bool {
	normalized := Normalize(text)
	if containsWord(negativeWords, normalized) {
		return false
	}
	return containsWord(affirmativeWords, normalized)
}

// ParseLookCreationFields extracts every slot it can recognize from one
// free-text turn. Unmatched slots stay empty.
func ParseLookCreationFields(text string) LookFields {
	normalized := Normalize(text)
	var fields LookFields
	for _, rule := range slotRules {
		if !rule.pattern.MatchString(normalized) {
			continue
		}
		switch rule.slot {
		case SlotOccasion:
			if fields.Occasion == "" {
				fields.Occasion = rule.value
			}
		case SlotStyle:
			if fields.Style == "" {
				fields.Style = rule.value
			}
		case SlotCategory:
			if fields.Category == "" {
				fields.Category = rule.value
			}
		}
	}
	return fields
}

// ParseLookCreationCategory maps free text to exactly one category.
// Returns "" when nothing matches or when the text names more than one
// category: ambiguity is rejected, never defaulted.
func ParseLookCreationCategory(text string) string {
	normalized := Normalize(text)
	found := ""
	for _, rule := range slotRules {
		if rule.slot != SlotCategory || !rule.pattern.MatchString(normalized) {
			continue
		}
		if found != "" && found != rule.value {
			return ""
		}
		found = rule.value
	}
	return found
}

// ParseSlotAnswer parses the answer to a directed question for one slot.
// Occasion and style accept a short literal answer when no keyword matches;
// category must resolve to the fixed enumeration. Empty result means the
// answer could not be parsed and the same slot must be re-prompted.
func ParseSlotAnswer(slot string, text string) string {
	fields := ParseLookCreationFields(text)
	switch slot {
	case SlotOccasion:
		if fields.Occasion != "" {
			return fields.Occasion
		}
		return shortLiteralAnswer(text)
	case SlotStyle:
		if fields.Style != "" {
			return fields.Style
		}
		return shortLiteralAnswer(text)
	case SlotCategory:
		return ParseLookCreationCategory(text)
	}
	return ""
}

// shortLiteralAnswer accepts up to three plain words as a literal slot
// value for the free-form slots.
func shortLiteralAnswer(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		return ""
	}
	if containsWord(affirmativeWords, normalized) || containsWord(negativeWords, normalized) {
		return ""
	}
	words := strings.Fields(normalized)
	if len(words) == 0 || len(words) > 3 {
		return ""
	}
	return strings.Join(words, " ")
}

// MissingLookFields returns the slots still required, always in the fixed
// priority order occasion, style, category.
func MissingLookFields(fields LookFields) []string {
	missing := []string{}
	if fields.Occasion == "" {
		missing = append(missing, SlotOccasion)
	}
	if fields.Style == "" {
		missing = append(missing, SlotStyle)
	}
	if fields.Category == "" {
		missing = append(missing, SlotCategory)
	}
	return missing
}

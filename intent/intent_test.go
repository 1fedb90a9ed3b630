package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLookCreationIntent(t *testing.T) {
	assert.True(t, DetectLookCreationIntent("Quiero un look para una boda"))
	assert.True(t, DetectLookCreationIntent("quiero una camisa formal para una boda"))
	assert.True(t, DetectLookCreationIntent("créame una prenda elegante"))
	assert.True(t, DetectLookCreationIntent("no tengo nada que ponerme"))
	assert.True(t, DetectLookCreationIntent("generate an outfit for the office"))

	assert.False(t, DetectLookCreationIntent("hola como estas"))
	assert.False(t, DetectLookCreationIntent("que hora es"))
}

func TestDetectGarmentEditIntent(t *testing.T) {
	assert.True(t, DetectGarmentEditIntent("hazlo más corto"))
	assert.True(t, DetectGarmentEditIntent("ponle mangas largas"))
	assert.True(t, DetectGarmentEditIntent("cambiá el color"))
	assert.True(t, DetectGarmentEditIntent("make it tighter"))
	assert.True(t, DetectGarmentEditIntent("quiero otro color"))

	assert.False(t, DetectGarmentEditIntent("me encanta, gracias"))
}

func TestNegativeWinsOverAffirmative(t *testing.T) {
	assert.True(t, IsNegative("no"))
	assert.True(t, IsNegative("mejor no, gracias"))
	assert.True(t, IsNegative("cancelar"))
	assert.False(t, IsAffirmative("no, mejor si"))

	assert.True(t, IsAffirmative("sí"))
	assert.True(t, IsAffirmative("dale"))
	assert.True(t, IsAffirmative("confirmo"))
	assert.False(t, IsNegative("dale"))
	assert.False(t, IsAffirmative("una camisa azul"))
}

func TestParseLookCreationFields(t *testing.T) {
	fields := ParseLookCreationFields("quiero una camisa formal para una boda")
	assert.Equal(t, "boda", fields.Occasion)
	assert.Equal(t, "formal", fields.Style)
	assert.Equal(t, CategoryTop, fields.Category)

	fields = ParseLookCreationFields("unos jeans para la oficina")
	assert.Equal(t, "oficina", fields.Occasion)
	assert.Equal(t, "", fields.Style)
	assert.Equal(t, CategoryBottom, fields.Category)

	fields = ParseLookCreationFields("algo lindo")
	assert.Equal(t, LookFields{}, fields)
}

func TestParseLookCreationCategoryRejectsAmbiguity(t *testing.T) {
	assert.Equal(t, CategoryShoes, ParseLookCreationCategory("unas zapatillas blancas"))
	assert.Equal(t, CategoryTop, ParseLookCreationCategory("a hoodie"))

	// two categories named, never guess between them
	assert.Equal(t, "", ParseLookCreationCategory("una camisa y un pantalón"))
	assert.Equal(t, "", ParseLookCreationCategory("algo comodo"))
}

func TestParseSlotAnswer(t *testing.T) {
	assert.Equal(t, "boda", ParseSlotAnswer(SlotOccasion, "para una boda"))
	assert.Equal(t, "casual", ParseSlotAnswer(SlotStyle, "algo casual"))
	assert.Equal(t, CategoryBottom, ParseSlotAnswer(SlotCategory, "una falda"))

	// free-form slots take a short literal answer
	assert.Equal(t, "cumpleanos sorpresa", ParseSlotAnswer(SlotOccasion, "cumpleaños sorpresa"))
	// but not a rambling one
	assert.Equal(t, "", ParseSlotAnswer(SlotOccasion, "bueno la verdad es que no estoy segura de la ocasion"))
	// nor a bare yes/no
	assert.Equal(t, "", ParseSlotAnswer(SlotStyle, "si"))
	// category never takes a literal
	assert.Equal(t, "", ParseSlotAnswer(SlotCategory, "algo lindo"))
}

func TestMissingLookFieldsOrder(t *testing.T) {
	missing := MissingLookFields(LookFields{})
	assert.Equal(t, []string{SlotOccasion, SlotStyle, SlotCategory}, missing)

	missing = MissingLookFields(LookFields{Style: "casual"})
	assert.Equal(t, []string{SlotOccasion, SlotCategory}, missing)

	missing = MissingLookFields(LookFields{Occasion: "boda", Style: "formal", Category: CategoryTop})
	assert.Equal(t, []string{}, missing)
}

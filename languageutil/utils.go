package languageutil

import (
	"fmt"

	"golang.org/x/text/language"
)

var supported = []language.Tag{
	language.Spanish, // default
	language.English,
}

var matcher = language.NewMatcher(supported)

// Match picks the best supported locale for an Accept-Language header.
// Spanish is the default for empty or unknown values.
func Match(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return language.Spanish
	}
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	base, _ := tag.Base()
	if base.String() == "en" {
		return language.English
	}
	return language.Spanish
}

var messages = map[string]map[string]string{
	"es": {
		"ask_occasion":       "¿Para qué ocasión es el look? (oficina, fiesta, cita...)",
		"ask_style":          "¿Qué estilo buscás? (formal, casual, urbano...)",
		"ask_category":       "¿Qué prenda querés generar: top, bottom o zapatos?",
		"ask_category_retry": "No me quedó claro, decime si es un top, un bottom o zapatos.",
		"ask_slot_retry":     "No entendí tu respuesta, probá de nuevo.",
		"choose_mode":        "¿Genero el look directo con tu pedido, o preferís que te haga unas preguntas primero?",
		"confirm_cost":       "Generar esto cuesta %v créditos. ¿Confirmás?",
		"pending_action":     "Ya hay una acción esperando tu confirmación. Confirmá o cancelá primero.",
		"cancelled":          "Listo, cancelado. Cuando quieras seguimos.",
		"selfie_required":    "Para probarte el look necesito una selfie de cuerpo entero. Subila desde tu perfil.",
		"generation_started": "¡Dale! Estoy generando tu prenda, dame unos segundos...",
		"edit_started":       "Aplicando el cambio a tu prenda...",
		"tryon_started":      "Probándote el look, un momento...",
		"generated":          "¡Acá está tu look! ¿Querés editarlo o probártelo?",
		"autosave_updated":   "Listo, actualicé el guardado automático.",
		"chat_fallback":      "Contame qué look querés y lo armamos. Por ejemplo: \"quiero un look nuevo para la oficina\".",
		"reward_granted":     "¡Sumaste %v créditos de regalo!",
		"reward_denied":      "Este dispositivo ya reclamó todas las recompensas del mes.",

		"RATE_LIMITED":             "Estamos recibiendo muchos pedidos, esperá un momento y reintentá.",
		"SERVICE_UNAVAILABLE":      "El generador no está disponible ahora, probá en unos minutos.",
		"NOT_CONFIGURED":           "El servicio de generación no está configurado. Avisale al soporte.",
		"NETWORK_ERROR":            "Hubo un problema de conexión, reintentá por favor.",
		"INSUFFICIENT_CREDITS":     "No te quedan créditos este mes. Pasate a Pro para seguir creando.",
		"TIMEOUT":                  "La generación tardó demasiado y la cancelamos. Podés reintentar.",
		"VALIDATION_MISSING_FIELD": "Falta un dato para poder generar, revisá tu pedido.",
		"UNKNOWN":                  "Algo salió mal, por favor reintentá.",
	},
	"en": {
		"ask_occasion":       "What occasion is the look for? (office, party, date...)",
		"ask_style":          "What style are you after? (formal, casual, street...)",
		"ask_category":       "Which garment should I generate: top, bottom or shoes?",
		"ask_category_retry": "I didn't get that, tell me if it's a top, a bottom or shoes.",
		"ask_slot_retry":     "I couldn't parse that answer, please try again.",
		"choose_mode":        "Should I generate the look right away from your request, or ask a few questions first?",
		"confirm_cost":       "Generating this costs %v credits. Confirm?",
		"pending_action":     "There is already an action awaiting your confirmation. Confirm or cancel it first.",
		"cancelled":          "Cancelled. Just tell me when you want to continue.",
		"selfie_required":    "I need a full-body selfie before a try-on. Upload it from your profile.",
		"generation_started": "On it! Generating your garment, give me a few seconds...",
		"edit_started":       "Applying the change to your garment...",
		"tryon_started":      "Trying the look on you, one moment...",
		"generated":          "Here is your look! Want to edit it or try it on?",
		"autosave_updated":   "Done, autosave setting updated.",
		"chat_fallback":      "Tell me what look you want and we'll build it. For example: \"I want a new look for the office\".",
		"reward_granted":     "You earned %v bonus credits!",
		"reward_denied":      "This device already claimed all rewards for this month.",

		"RATE_LIMITED":             "We're getting a lot of requests, wait a moment and retry.",
		"SERVICE_UNAVAILABLE":      "The generator is unavailable right now, try again in a few minutes.",
		"NOT_CONFIGURED":           "The generation service is not configured. Please contact support.",
		"NETWORK_ERROR":            "There was a connection problem, please retry.",
		"INSUFFICIENT_CREDITS":     "You're out of credits this month. Upgrade to Pro to keep creating.",
		"TIMEOUT":                  "Generation took too long and was cancelled. You can retry.",
		"VALIDATION_MISSING_FIELD": "A field is missing to generate, check your request.",
		"UNKNOWN":                  "Something went wrong, please retry.",
	},
}

// Message returns the localized text for a key, falling back to Spanish
// and then to the key itself so a missing entry is visible, not fatal.
func Message(tag language.Tag, key string) string {
	lang := "es"
	base, _ := tag.Base()
	if base.String() == "en" {
		lang = "en"
	}
	if text, ok := messages[lang][key]; ok {
		return text
	}
	if text, ok := messages["es"][key]; ok {
		return text
	}
	return key
}

func Messagef(tag language.Tag, key string, args ...interface{}) string {
	return fmt.Sprintf(Message(tag, key), args...)
}

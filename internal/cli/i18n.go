package cli

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supportedLanguages = []language.Tag{language.English, language.Spanish}

var languageMatcher = language.NewMatcher(supportedLanguages)

// Message keys are the English text. English needs no catalog entries.
var translations = map[language.Tag]map[string]string{
	language.Spanish: {
		"Deadline:":                         "Fecha límite:",
		"Days Remaining To Update:":         "Días restantes para actualizar:",
		"Deferred Count:":                   "Número de aplazamientos:",
		"Mode:":                             "Modo:",
		"Defer until at most:":              "Aplazar como máximo hasta:",
		"Deferred until:":                   "Aplazado hasta:",
		"Your device requires an update.":   "Su dispositivo requiere una actualización.",
		"The update deadline is imminent.":  "La fecha límite de actualización es inminente.",
		"No deferrals remain.":              "No quedan aplazamientos.",
		"Demo mode: enforcement suspended.": "Modo demostración: aplicación suspendida.",
		"Deferral recorded (%s, total %d)":  "Aplazamiento registrado (%s, total %d)",
		"Update launched":                   "Actualización iniciada",
		"Timeline:":                         "Plazo:",
		"Quit deferrals:":                   "Aplazamientos al salir:",
		"Ledger unreadable:":                "Registro ilegible:",
		"Ledger reset for %s":               "Registro reiniciado para %s",
		"Configuration valid":               "Configuración válida",
		"Audit log intact: %d records":      "Registro de auditoría íntegro: %d registros",
	},
}

func init() {
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := message.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
}

// newPrinter returns a printer for the closest supported language.
// Unknown or empty languages fall back to English.
func newPrinter(lang string) *message.Printer {
	tag := language.English
	if parsed, err := language.Parse(lang); err == nil {
		_, index, confidence := languageMatcher.Match(parsed)
		if confidence != language.No {
			tag = supportedLanguages[index]
		}
	}
	return message.NewPrinter(tag)
}

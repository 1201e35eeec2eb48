package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys shared by the API and CLI. English output is the key itself.
const (
	MsgUnknownOperation  = "unknown operation %q"
	MsgArgumentMismatch  = "operation %s takes %d argument(s)"
	MsgInvalidArgument   = "invalid value for %s: must be a non-negative integer"
	MsgWorkerUnavailable = "speedtest worker is unavailable"
	MsgWorkerFailed      = "worker command failed with exit code %d"
	MsgRateLimited       = "too many requests, retry in %s"
	MsgMethodNotAllowed  = "method %s not allowed"
	MsgInternalError     = "internal error"
	MsgAuditDisabled     = "audit trail is disabled"
	MsgInvalidRequest    = "invalid request: %s"
)

func init() {
	de := language.German
	set := func(key, msg string) {
		// SetString only fails on malformed tags
		_ = message.SetString(de, key, msg)
	}

	set(MsgUnknownOperation, "unbekannte Operation %q")
	set(MsgArgumentMismatch, "Operation %s erwartet %d Argument(e)")
	set(MsgInvalidArgument, "ungültiger Wert für %s: muss eine nicht-negative Ganzzahl sein")
	set(MsgWorkerUnavailable, "Speedtest-Dienst ist nicht erreichbar")
	set(MsgWorkerFailed, "Befehl fehlgeschlagen mit Exit-Code %d")
	set(MsgRateLimited, "zu viele Anfragen, erneut versuchen in %s")
	set(MsgMethodNotAllowed, "Methode %s nicht erlaubt")
	set(MsgInternalError, "interner Fehler")
	set(MsgAuditDisabled, "Audit-Protokoll ist deaktiviert")
	set(MsgInvalidRequest, "ungültige Anfrage: %s")
}

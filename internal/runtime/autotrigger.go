package runtime

import (
	"fmt"
	"strings"

	"github.com/meridianbank/agentcore/internal/model"
)

// Auto-trigger is opt-in and env-gated (§4.7, RuntimeConfig.AutoTriggerEnabled)
// and fires at most once per session (guarded by Session.AutotriggerFired).
// Rather than special-casing "identity-verification" or "banking" by agent
// id, the precondition is data-driven off the persona's metadata (§3:
// Persona.Metadata is opaque key/value, loaded once at process start) —
// the same mechanism the workflow graph and tool dispatcher already use
// for anything agent-specific.
const (
	metaAutoTriggerMode        = "auto_trigger_mode"
	metaAutoTriggerRequireKeys = "auto_trigger_require_keys"
	metaAutoTriggerMissingKeys = "auto_trigger_missing_keys"
	metaAutoTriggerMessage     = "auto_trigger_message"

	modeJoinValues       = "join_values"
	modeMissingCredentials = "missing_credentials"
)

// autoTriggerUtterance reports the synthesised utterance to feed into
// process_user_utterance on session init, and whether one applies at all,
// per §4.7's "if memory contains the required pre-conditions" rule.
//
// S1 (join_values): every key in auto_trigger_require_keys is present and
// non-empty in memory; the utterance is their values joined by a space
// (e.g. account number + sort code spoken as one utterance).
//
// S2 (missing_credentials): every key in auto_trigger_require_keys is
// present, but at least one of auto_trigger_missing_keys is absent; the
// utterance is the persona's fixed auto_trigger_message, a system-tagged
// prompt asking the model to request the missing fields.
func autoTriggerUtterance(persona *model.Persona, memory model.Memory) (string, bool) {
	mode := persona.Metadata[metaAutoTriggerMode]
	requireKeys := splitKeys(persona.Metadata[metaAutoTriggerRequireKeys])
	if mode == "" || len(requireKeys) == 0 {
		return "", false
	}
	if !allPresent(memory, requireKeys) {
		return "", false
	}

	switch mode {
	case modeJoinValues:
		values := make([]string, 0, len(requireKeys))
		for _, k := range requireKeys {
			values = append(values, fmt.Sprintf("%v", memory[k]))
		}
		return strings.Join(values, " "), true

	case modeMissingCredentials:
		missingKeys := splitKeys(persona.Metadata[metaAutoTriggerMissingKeys])
		if allPresent(memory, missingKeys) {
			// Every credential is already in memory; nothing missing to ask for.
			return "", false
		}
		msg := persona.Metadata[metaAutoTriggerMessage]
		if msg == "" {
			msg = "[SYSTEM] required credentials are missing from memory; ask the caller for them before proceeding."
		}
		return msg, true

	default:
		return "", false
	}
}

func splitKeys(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func allPresent(memory model.Memory, keys []string) bool {
	for _, k := range keys {
		v, ok := memory[k]
		if !ok {
			return false
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

package jobs

import (
	"encoding/json"

	"quick-translate/internal/domain"
)

// Payloads arrive either as Go values from the in-process gateway or as decoded
// JSON from the frontend, so each decoder accepts both shapes.

func decodeText(payload any) (string, bool) {
	switch v := payload.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

func decodeFraction(payload any) (float64, bool) {
	switch v := payload.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func decodeCompletion(payload any) (domain.Completion, bool) {
	switch v := payload.(type) {
	case domain.Completion:
		return v, true
	case *domain.Completion:
		if v == nil {
			return domain.Completion{}, false
		}
		return *v, true
	case map[string]any:
		ok, found := v["ok"].(bool)
		if !found {
			return domain.Completion{}, false
		}
		reason, _ := v["reason"].(string)
		return domain.Completion{OK: ok, Reason: reason}, true
	default:
		return domain.Completion{}, false
	}
}

package relay

import (
	"time"

	"locker-kiosk-service/internal/policy"
)

// normalizeSuccess maps a 2xx backend reply onto the result envelope. A 2xx
// body carrying success:false is a definitive benign "no" (read-card with an
// empty queue, drop-off with no free locker) and keeps ErrorCode empty so
// callers can tell it apart from transport trouble.
func (g *Gateway) normalizeSuccess(operation string, out attemptOutcome, attempt int, correlationID string, start time.Time) Result {
	res := Result{
		Success:       true,
		Status:        out.status,
		Message:       "ok",
		AttemptsUsed:  attempt,
		ElapsedMS:     g.now().Sub(start).Milliseconds(),
		CorrelationID: correlationID,
	}

	if out.isObject {
		if out.env.HasSuccess {
			res.Success = out.env.Success
		}
		if out.env.Message != "" {
			res.Message = out.env.Message
		}
	}

	switch operation {
	case policy.OpReadCard:
		if res.Success && out.env.Card != nil {
			res.Card = out.env.Card
			res.Payload = map[string]any{"detected": true}
		} else {
			res.Success = false
			if res.Message == "ok" {
				res.Message = "no card recently read"
			}
			res.Payload = map[string]any{"detected": false}
		}
	case policy.OpStatus, policy.OpHealth, policy.OpDeviceInfo:
		res.Payload = g.augment(out, correlationID)
	case policy.OpWashTypes:
		res.Payload = out.raw
		if res.Success {
			g.storeWashTypes(out.raw)
		}
	default:
		res.Payload = out.raw
	}

	return res
}

// augment adds gateway-observed metadata to an object payload. Backend
// fields are never altered; a non-object payload passes through untouched.
func (g *Gateway) augment(out attemptOutcome, correlationID string) any {
	obj, ok := out.raw.(map[string]any)
	if !ok || obj == nil {
		return out.raw
	}
	if _, taken := obj["gateway"]; taken {
		return out.raw
	}

	augmented := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		augmented[k] = v
	}
	augmented["gateway"] = map[string]any{
		"observed_at":    g.now().UTC().Format(time.RFC3339),
		"correlation_id": correlationID,
		"round_trip_ms":  out.duration.Milliseconds(),
	}
	return augmented
}

package audit

import "time"

// TopicDecision is the topic admission decisions are published to.
const TopicDecision = "gatekeeper.decision"

// AdmissionDecidedEvent is emitted for every admit or deny returned to a caller.
// Checks that failed with an error produce no event.
type AdmissionDecidedEvent struct {
	DecisionID string    `json:"decisionId"`
	Recipient  string    `json:"recipient"`
	Allowed    bool      `json:"allowed"`
	DecidedAt  time.Time `json:"decidedAt"`
	ClientIP   string    `json:"clientIp,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
}

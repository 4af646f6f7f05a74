package approval

// Policy holds the risk-scoring weights for the classifier. The exact numbers
// are product policy loaded from config, not a load-bearing invariant.
type Policy struct {
	// BaseScores maps each registered action type to its base sensitivity.
	// Types absent from this table are unknown and fail closed.
	BaseScores map[ActionType]int
	// KnownRecipients lists recipients that do not raise the score
	// (addresses and phone numbers the owner messages routinely).
	KnownRecipients []string
	// ExternalRecipientPenalty is added when the recipient is not known.
	ExternalRecipientPenalty int
	// ReversibleCredit is subtracted when the action can be undone.
	ReversibleCredit int
	// ApprovalThreshold is the score at or above which a request needs
	// human review.
	ApprovalThreshold int
}

// DefaultPolicy returns the stock weights.
func DefaultPolicy() Policy {
	return Policy{
		BaseScores: map[ActionType]int{
			ActionSendEmail:    50,
			ActionSendWhatsApp: 40,
			ActionPostLinkedIn: 60,
		},
		ExternalRecipientPenalty: 30,
		ReversibleCredit:         20,
		ApprovalThreshold:        40,
	}
}

// Classifier decides whether a proposed action needs human approval and
// assigns it a risk score. Pure and deterministic: same input, same answer,
// no I/O.
type Classifier struct {
	policy     Policy
	recipients map[string]bool
}

// NewClassifier builds a classifier from the given policy.
func NewClassifier(policy Policy) *Classifier {
	recipients := make(map[string]bool, len(policy.KnownRecipients))
	for _, r := range policy.KnownRecipients {
		recipients[normalizeRecipient(r)] = true
	}
	return &Classifier{policy: policy, recipients: recipients}
}

// Classify maps an action to (requiresApproval, riskScore in [0,100]).
//
// Unknown action types fail closed: the system must never silently
// auto-execute an action type it does not recognize.
func (c *Classifier) Classify(actionType ActionType, raw map[string]any) (bool, int) {
	base, registered := c.policy.BaseScores[actionType]
	if !registered {
		return true, 100
	}

	score := base

	details, err := ParseDetails(actionType, raw)
	if err != nil {
		// Registered type the parser does not know means the base table and
		// the detail schemas are out of sync. Fail closed.
		return true, 100
	}

	if recipient := details.Recipient(); recipient != "" && !c.recipients[normalizeRecipient(recipient)] {
		score += c.policy.ExternalRecipientPenalty
	}
	if details.Reversible() {
		score -= c.policy.ReversibleCredit
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score >= c.policy.ApprovalThreshold, score
}

func normalizeRecipient(r string) string {
	b := make([]byte, 0, len(r))
	for i := 0; i < len(r); i++ {
		ch := r[i]
		if ch == ' ' || ch == '-' {
			continue
		}
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		b = append(b, ch)
	}
	return string(b)
}

package policy

import (
	"time"

	"go.uber.org/zap"
)

// TrustedDataPolicy mirrors the `trusted_data_policies` row.
type TrustedDataPolicy struct {
	ID            string
	ToolID        string
	Description   string
	AttributePath string
	Operator      Operator
	Value         string
	CreatedAt     time.Time
}

// TrustResult is the output of §4.E.
type TrustResult struct {
	IsTrusted                bool
	IsBlocked                bool
	ShouldSanitizeWithDualLLM bool
	Reason                   string
}

const noPolicyMatchedReason = "no applicable trusted-data policy matched"

// EvaluateTrustedData reports whether a tool result is trusted: it is
// trusted iff at least one applicable policy matches every leaf reached
// by its attributePath (§4.B: zero leaves never counts as a match).
// Untrusted results are routed to dual-LLM sanitisation unless a future
// extension tags a policy `block`, which IsBlocked is reserved for.
func EvaluateTrustedData(policies []TrustedDataPolicy, result any, logger *zap.Logger) TrustResult {
	for _, p := range policies {
		leaves, err := ExtractPath(result, p.AttributePath)
		if err != nil || len(leaves) == 0 {
			continue
		}

		allMatch := true
		for _, leaf := range leaves {
			if !Evaluate(p.Operator, leaf, p.Value, logger) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return TrustResult{IsTrusted: true, Reason: p.Description}
		}
	}

	return TrustResult{
		IsTrusted:                 false,
		ShouldSanitizeWithDualLLM: true,
		Reason:                    noPolicyMatchedReason,
	}
}

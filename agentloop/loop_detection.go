package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// DefaultLoopWindow is the number of trailing invocations inspected.
const DefaultLoopWindow = 4

// invocationSignature computes a deterministic signature for a tool call
// (name + hash of arguments). encoding/json sorts map keys, so equal
// argument maps hash equally regardless of encoding.
func invocationSignature(inv ToolInvocation) string {
	raw, err := json.Marshal(inv.Arguments)
	if err != nil {
		raw = nil
	}
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", inv.Name, h[:8])
}

// DetectLoop checks if the last windowSize invocations follow a repeating
// pattern of length 1, 2, or 3.
func DetectLoop(calls []ToolInvocation, windowSize int) bool {
	if windowSize <= 0 || len(calls) < windowSize {
		return false
	}
	sigs := make([]string, windowSize)
	for i, inv := range calls[len(calls)-windowSize:] {
		sigs[i] = invocationSignature(inv)
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || windowSize == patternLen {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}

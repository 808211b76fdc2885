package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"deriv-signal-bot/internal/types"
)

// ValidationError reports an oracle reply that does not satisfy the decision contract.
// It is never replaced by a default decision.
type ValidationError struct {
	Reason string
	Raw    string
}

func (e *ValidationError) Error() string {
	return "invalid oracle response: " + e.Reason
}

const decisionSchema = `{
  "type": "object",
  "required": ["signal", "confidence", "tp", "sl", "reason"],
  "properties": {
    "signal":     {"type": "string", "pattern": "^(?i)\\s*(buy|sell|neutral)\\s*$"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "tp":         {"type": "number", "minimum": 0},
    "sl":         {"type": "number", "minimum": 0},
    "reason":     {"type": "string"}
  }
}`

var compiledDecisionSchema = mustCompileSchema(decisionSchema)

func mustCompileSchema(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("decision.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("decision.json")
}

// ParseDecision extracts and validates a decision from free oracle text.
func ParseDecision(text string) (types.Decision, error) {
	obj, ok := extractObject(stripFences(text))
	if !ok {
		return types.Decision{}, &ValidationError{Reason: "no JSON object in response", Raw: text}
	}
	if !gjson.Valid(obj) {
		return types.Decision{}, &ValidationError{Reason: "malformed JSON", Raw: text}
	}

	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return types.Decision{}, &ValidationError{Reason: "malformed JSON: " + err.Error(), Raw: text}
	}
	if err := compiledDecisionSchema.Validate(doc); err != nil {
		return types.Decision{}, &ValidationError{Reason: schemaReason(err), Raw: text}
	}

	fields := gjson.GetMany(obj, "signal", "confidence", "tp", "sl", "reason")
	sig, ok := types.ParseSignal(fields[0].String())
	if !ok {
		return types.Decision{}, &ValidationError{Reason: fmt.Sprintf("unknown signal %q", fields[0].String()), Raw: text}
	}

	d := types.Decision{
		Signal:     sig,
		Confidence: fields[1].Float(),
		TP:         fields[2].Float(),
		SL:         fields[3].Float(),
		Reason:     strings.TrimSpace(fields[4].String()),
	}
	if err := checkDecision(d); err != nil {
		return types.Decision{}, &ValidationError{Reason: err.Error(), Raw: text}
	}
	return d, nil
}

func checkDecision(d types.Decision) error {
	for name, v := range map[string]float64{"confidence": d.Confidence, "tp": d.TP, "sl": d.SL} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("confidence %v outside 0-100", d.Confidence)
	}
	if d.TP < 0 || d.SL < 0 {
		return fmt.Errorf("negative tp/sl")
	}
	if d.Signal != types.SignalNeutral && (d.TP <= 0 || d.SL <= 0) {
		return fmt.Errorf("%s requires positive tp and sl", d.Signal)
	}
	return nil
}

func schemaReason(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("schema: %s: %s", loc, leaf.Message)
	}
	return "schema: " + err.Error()
}

// stripFences removes markdown code fence markers, keeping their contents.
func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// extractObject returns the first balanced {...} in raw, ignoring braces inside strings.
func extractObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

package browser

import "encoding/json"

// evalEnvelope is the JSON shape every injected script resolves to. Scripts
// are wrapped in an IIFE that catches throws and reports them through the
// envelope instead of leaking a CDP exception.
type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func buildIIFE(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

// WrapEval wraps a script body into a self-contained expression. The body
// must end with `return JSON.stringify({ok:true,data:...});`.
func WrapEval(body string) string { return buildIIFE(body) }

// JSString returns v as a quoted, escaped JS string literal.
func JSString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// JSJSON returns v serialized as a JS literal.
func JSJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

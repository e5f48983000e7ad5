package codec

// FormatV2 is the current, authoritative document format written by
// ExportState. FormatV1 is the legacy flat format that ImportDocument
// must still accept (spec §6).
const (
	FormatV2 = "redstring-v2.0.0-semantic"
	FormatV1 = "redstring-v1.0.0"
)

// staticContext is the default JSON-LD short-name -> IRI vocabulary
// table. It is a literal table, not a computed one, per spec §9: the
// codec does not evaluate JSON-LD semantics, only emits this shape.
var staticContext = map[string]string{
	"redstring":  "https://redstring.io/vocab#",
	"rdf":        "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs":       "http://www.w3.org/2000/01/rdf-schema#",
	"owl":        "http://www.w3.org/2002/07/owl#",
	"xsd":        "http://www.w3.org/2001/XMLSchema#",
	"prototype":  "https://redstring.io/prototype/",
	"instance":   "https://redstring.io/instance/",
	"graph":      "https://redstring.io/graph/",
	"node":       "https://redstring.io/node/",
	"type":       "https://redstring.io/type/",
}

// ContextGenerator substitutes the static context with a user-domain
// variant at export time (spec §9's "injected generator" substitution
// point). A nil generator (or one returning nil) falls back to the
// static table.
type ContextGenerator func(userDomain string) map[string]string

// DefaultContext returns a copy of the static vocabulary table.
func DefaultContext() map[string]string {
	out := make(map[string]string, len(staticContext))
	for k, v := range staticContext {
		out[k] = v
	}
	return out
}

func resolveContext(gen ContextGenerator, userDomain string) map[string]string {
	if gen != nil && userDomain != "" {
		if ctx := gen(userDomain); ctx != nil {
			return ctx
		}
	}
	return DefaultContext()
}

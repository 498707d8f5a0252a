package tsemitter

import (
	"fmt"
	"strings"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// Envelope names the discriminant of the generated Result type.
type Envelope string

const (
	EnvelopeOK      Envelope = "ok"
	EnvelopeSuccess Envelope = "success"
)

// QueryPresence decides when a GET parameter contributes a query fragment.
type QueryPresence string

const (
	// PresenceTruthy omits falsy values (0, "", false) as well as absent ones.
	// This matches the query strings of the published Koios client.
	PresenceTruthy QueryPresence = "truthy"
	// PresenceDefined omits only undefined values.
	PresenceDefined QueryPresence = "defined"
)

const generatedHeader = "// Code generated by koiosgen. DO NOT EDIT.\n"

// renderMethods produces src/methods.ts.
func renderMethods(named []namedOperation, envelope Envelope, presence QueryPresence) string {
	var b strings.Builder
	b.WriteString(generatedHeader)
	b.WriteString("import type { AxiosInstance } from \"axios\";\n")
	b.WriteString("import type * as types from \"./types\";\n\n")
	b.WriteString(resultType(envelope))
	b.WriteString("\nexport const createMethods = (client: AxiosInstance) => ({\n")
	for i, n := range named {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(methodEntry(n, BuildSignature(n.Op), presence))
	}
	b.WriteString("});\n\n")
	b.WriteString("export type Methods = ReturnType<typeof createMethods>;\n")
	return b.String()
}

func resultType(envelope Envelope) string {
	key := string(envelope)
	return fmt.Sprintf("export type Result<T> =\n"+
		"  | { %[1]s: true; status: number; data: T }\n"+
		"  | { %[1]s: false; status?: number; error: unknown };\n", key)
}

func methodEntry(n namedOperation, sig Signature, presence QueryPresence) string {
	var b strings.Builder
	b.WriteString(methodJSDoc(n.Op, sig))
	ret := fmt.Sprintf("Promise<Result<types.%sResponse>>", n.Name)
	fmt.Fprintf(&b, "  %s: async (\n", n.Name)
	fmt.Fprintf(&b, "    %s,\n", sig.Declaration())
	b.WriteString("    extraParams?: string,\n")
	b.WriteString("    headers?: Record<string, string>,\n")
	b.WriteString("    signal?: AbortSignal,\n")
	fmt.Fprintf(&b, "  ): %s =>\n", ret)

	query := n.Op.Method == genspec.GET || sig.Source == SourceQuery
	url := "`" + templateText(n.Op.Path) + "?"
	if query {
		for _, p := range sig.Params {
			url += queryFragment(p.Name, presence)
		}
	}
	url += "${extraParams || \"\"}`"

	if n.Op.Method == genspec.GET {
		fmt.Fprintf(&b, "    client.get(%s, { headers, signal }) as unknown as %s,\n", url, ret)
		return b.String()
	}
	body := "{}"
	if sig.Source == SourceBody {
		fields := make([]string, 0, len(sig.Params))
		for _, p := range sig.Params {
			fields = append(fields, fmt.Sprintf("%s: params%s", tsPropertyKey(p.Name), optionalAccess(p.Name)))
		}
		body = "{ " + strings.Join(fields, ", ") + " }"
	}
	b.WriteString("    client.post(\n")
	fmt.Fprintf(&b, "      %s,\n", url)
	fmt.Fprintf(&b, "      %s,\n", body)
	b.WriteString("      { headers, signal },\n")
	fmt.Fprintf(&b, "    ) as unknown as %s,\n", ret)
	return b.String()
}

// queryFragment renders one "&name=value" fragment guarded by the presence
// check, e.g. ${params?._limit ? `&_limit=${params._limit}` : ""}.
func queryFragment(name string, presence QueryPresence) string {
	cond := "params" + optionalAccess(name)
	if presence == PresenceDefined {
		cond += " !== undefined"
	}
	return fmt.Sprintf("${%s ? `&%s=${params%s}` : \"\"}", cond, templateText(name), access(name))
}

func access(name string) string {
	if isIdentifier(name) {
		return "." + name
	}
	return "[" + tsPropertyKey(name) + "]"
}

func optionalAccess(name string) string {
	if isIdentifier(name) {
		return "?." + name
	}
	return "?.[" + tsPropertyKey(name) + "]"
}

// templateText escapes s for use inside a template literal.
func templateText(s string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`", "${", "\\${").Replace(s)
}

func methodJSDoc(op genspec.OperationRecord, sig Signature) string {
	var lines []string
	if op.Summary != "" {
		lines = append(lines, op.Summary)
	}
	if op.Description != "" && op.Description != op.Summary {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.Split(op.Description, "\n")...)
	}
	if len(lines) > 0 {
		lines = append(lines, "")
	}
	lines = append(lines, fmt.Sprintf("%s %s", strings.ToUpper(string(op.Method)), op.Path))
	for _, p := range sig.Params {
		if p.Description != "" {
			lines = append(lines, fmt.Sprintf("@param params.%s %s", p.Name, firstLine(p.Description)))
		}
	}
	return jsDoc("  ", lines)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// jsDoc renders lines as a JSDoc block at the given indent; a single line
// collapses to /** line */.
func jsDoc(indent string, lines []string) string {
	for i, l := range lines {
		lines[i] = strings.ReplaceAll(strings.TrimRight(l, " \t"), "*/", "*\\/")
	}
	if len(lines) == 0 {
		return ""
	}
	if len(lines) == 1 {
		return fmt.Sprintf("%s/** %s */\n", indent, lines[0])
	}
	var b strings.Builder
	b.WriteString(indent + "/**\n")
	for _, l := range lines {
		if l == "" {
			b.WriteString(indent + " *\n")
		} else {
			fmt.Fprintf(&b, "%s * %s\n", indent, l)
		}
	}
	b.WriteString(indent + " */\n")
	return b.String()
}

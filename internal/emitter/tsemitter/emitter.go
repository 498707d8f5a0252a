package tsemitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// Options controls how the TypeScript client project is rendered.
type Options struct {
	OutDir      string // required; target directory to write the project
	PackageName string // npm package name; derived from the document title when empty
	BaseURL     string // default base URL baked into src/index.ts; first server when empty
	Info        genspec.Info

	Envelope      Envelope      // ok (default) or success
	QueryPresence QueryPresence // truthy (default) or defined
	// NameOverrides are added after the built-in override table.
	NameOverrides []NameOverride

	Force   bool // overwrite existing files
	DryRun  bool // don't write, only plan
	Format  bool // run prettier over the written sources
	Verbose bool
	// Log receives [INFO] lines when Verbose is set. Defaults to os.Stderr.
	Log io.Writer
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result returns the planned files, the emitted method names and any
// per-operation diagnostics.
type Result struct {
	PackageName string
	Methods     []string
	Planned     []PlannedFile
	Diagnostics []Diagnostic
}

// DefaultBaseURL is used when neither Options nor the document name a server.
const DefaultBaseURL = "https://api.koios.rest/api/v1"

// runFormatter formats the generated sources in dir. Swapped in tests.
var runFormatter = func(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "npx", "--yes", "prettier", "--write", "src/**/*.ts")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Emit renders the TypeScript client for ops: src/methods.ts, src/types.ts,
// src/index.ts and the package scaffolding around them.
func Emit(ctx context.Context, ops []genspec.OperationRecord, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, &EmitError{Stage: StageEmit, Message: "tsemitter: OutDir is required"}
	}
	envelope := opts.Envelope
	switch envelope {
	case "":
		envelope = EnvelopeOK
	case EnvelopeOK, EnvelopeSuccess:
	default:
		return nil, &EmitError{Stage: StageEmit, Message: fmt.Sprintf("tsemitter: unknown envelope %q (want ok or success)", envelope)}
	}
	presence := opts.QueryPresence
	switch presence {
	case "":
		presence = PresenceTruthy
	case PresenceTruthy, PresenceDefined:
	default:
		return nil, &EmitError{Stage: StageEmit, Message: fmt.Sprintf("tsemitter: unknown query presence %q (want truthy or defined)", presence)}
	}
	overrides := MergeNameOverrides(opts.NameOverrides)
	pkgName := sanitizePackageName(opts.PackageName)
	if pkgName == "" {
		pkgName = derivePackageName(opts.Info.Title)
		if pkgName == "" {
			pkgName = "koios-client"
		}
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" && len(opts.Info.Servers) > 0 {
		baseURL = opts.Info.Servers[0]
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	named, diags, err := nameOperations(ops, overrides)
	if err != nil {
		return nil, err
	}
	for _, n := range named {
		for _, w := range n.Op.Warnings {
			diags = append(diags, Diagnostic{Stage: StageEmit, Operation: n.Op.ID(), Severity: SeverityWarning, Message: w})
		}
		if sig := BuildSignature(n.Op); sig.Mixed {
			diags = append(diags, Diagnostic{Stage: StageEmit, Operation: n.Op.ID(), Severity: SeverityWarning,
				Message: "operation has both query parameters and body properties; body properties are not part of the signature"})
		}
	}

	typesTS, typeDiags := renderTypes(named)
	diags = append(diags, typeDiags...)

	methods := make([]string, 0, len(named))
	for _, n := range named {
		methods = append(methods, n.Name)
	}

	files := map[string][]byte{}
	files[".editorconfig"] = []byte(renderEditorConfig())
	files[".prettierrc.json"] = []byte(renderPrettierRC())
	pkgJSON, err := renderPackageJSON(pkgName, opts.Info)
	if err != nil {
		return nil, &EmitError{Stage: StageEmit, Message: fmt.Sprintf("marshal package.json: %v", err), Cause: err}
	}
	files["package.json"] = pkgJSON
	files["tsconfig.json"] = []byte(renderTSConfig())
	files["README.md"] = []byte(renderReadme(pkgName, baseURL, opts.Info, named))
	files[filepath.Join("src", "index.ts")] = []byte(renderIndexTs(baseURL, envelope))
	files[filepath.Join("src", "methods.ts")] = []byte(renderMethods(named, envelope, presence))
	files[filepath.Join("src", "types.ts")] = []byte(typesTS)

	// Plan in deterministic order
	rels := make([]string, 0, len(files))
	byRel := make(map[string][]byte, len(files))
	for p, content := range files {
		rel := filepath.ToSlash(p)
		rels = append(rels, rel)
		byRel[rel] = content
	}
	sort.Strings(rels)

	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(byRel[rel]), Mode: 0o644})
	}
	res := &Result{PackageName: pkgName, Methods: methods, Planned: planned, Diagnostics: diags}
	if opts.DryRun {
		return res, nil
	}

	if err := writeFiles(opts.OutDir, files, opts.Force); err != nil {
		return nil, err
	}
	logf(opts, "[INFO] wrote %d files (%d methods) to %s\n", len(planned), len(methods), opts.OutDir)

	if opts.Format {
		if err := runFormatter(ctx, opts.OutDir); err != nil {
			return nil, &EmitError{Stage: StageFormat, Message: fmt.Sprintf("prettier: %v", err), Cause: err}
		}
		logf(opts, "[INFO] formatted sources in %s\n", opts.OutDir)
	}
	return res, nil
}

func logf(opts Options, format string, args ...any) {
	if !opts.Verbose {
		return
	}
	w := opts.Log
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, format, args...)
}

func writeFiles(outDir string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return &EmitError{Stage: StageWrite, Message: fmt.Sprintf("resolve out dir: %v", err), Cause: err}
	}
	// Pre-flight: if directory exists and not empty and not force, error.
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return &EmitError{Stage: StageWrite, Message: fmt.Sprintf("output directory %q is not empty (use --force to overwrite)", abs)}
		}
	}
	// Sorted so a failure always leaves the same prefix written.
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		p := filepath.Join(abs, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return &EmitError{Stage: StageWrite, Message: fmt.Sprintf("mkdir: %v", err), Cause: err}
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, files[rel], 0o644); err != nil {
			return &EmitError{Stage: StageWrite, Message: fmt.Sprintf("write temp %s: %v", rel, err), Cause: err}
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return &EmitError{Stage: StageWrite, Message: fmt.Sprintf("rename %s: %v", rel, err), Cause: err}
		}
	}
	return nil
}

func sanitizePackageName(name string) string {
	// Simplified npm name sanitizer; keeps a leading @scope/.
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	scope := ""
	if strings.HasPrefix(name, "@") {
		if i := strings.IndexByte(name, '/'); i > 1 {
			scope = sanitizePackageName(name[1:i])
			name = name[i+1:]
		}
	}
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	b := strings.Builder{}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "-.")
	if scope != "" && out != "" {
		return "@" + scope + "/" + out
	}
	return out
}

func derivePackageName(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return ""
	}
	repl := strings.NewReplacer("/", " ", "_", " ", ".", " ", ",", " ", ":", " ")
	parts := strings.Fields(repl.Replace(t))
	if len(parts) == 0 {
		return ""
	}
	return sanitizePackageName(strings.Join(parts, "-"))
}

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

func packageVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if semverRe.MatchString(v) {
		return v
	}
	return "0.1.0"
}

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description,omitempty"`
	Main            string            `json:"main"`
	Types           string            `json:"types"`
	Files           []string          `json:"files"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func renderPackageJSON(name string, info genspec.Info) ([]byte, error) {
	pkg := packageJSON{
		Name:        name,
		Version:     packageVersion(info.Version),
		Description: info.Title,
		Main:        "dist/index.js",
		Types:       "dist/index.d.ts",
		Files:       []string{"dist"},
		Scripts: map[string]string{
			"build":  "tsc -p tsconfig.json",
			"format": "prettier --write \"src/**/*.ts\"",
		},
		Dependencies:    map[string]string{"axios": "^1.7.0"},
		DevDependencies: map[string]string{"prettier": "^3.3.0", "typescript": "^5.5.0"},
	}
	out, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func renderTSConfig() string {
	return `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "commonjs",
    "declaration": true,
    "outDir": "dist",
    "rootDir": "src",
    "strict": true,
    "esModuleInterop": true,
    "skipLibCheck": true
  },
  "include": ["src"]
}
`
}

func renderEditorConfig() string {
	return `root = true

[*]
charset = utf-8
end_of_line = lf
indent_style = space
indent_size = 2
insert_final_newline = true
trim_trailing_whitespace = true
`
}

func renderPrettierRC() string {
	return `{
  "printWidth": 100,
  "singleQuote": false,
  "trailingComma": "all"
}
`
}

func renderIndexTs(baseURL string, envelope Envelope) string {
	key := string(envelope)
	b, _ := json.Marshal(baseURL)
	return generatedHeader + `import axios, { type AxiosError, type AxiosInstance, type AxiosResponse, type CreateAxiosDefaults } from "axios";
import { createMethods, type Methods } from "./methods";

export * from "./types";
export type { Methods, Result } from "./methods";

export const BASE_URL = ` + string(b) + `;

export type Client = Methods & { http: AxiosInstance };

// createClient binds the method table to an axios instance whose responses
// are normalised into Result values.
export function createClient(baseURL: string = BASE_URL, config: CreateAxiosDefaults = {}): Client {
  const http = axios.create({ ...config, baseURL });
  http.interceptors.response.use(
    (response: AxiosResponse) =>
      ({ ` + key + `: true, status: response.status, data: response.data }) as unknown as AxiosResponse,
    (error: AxiosError) => ({ ` + key + `: false, status: error.response?.status, error: error.response?.data ?? error.message }),
  );
  return { http, ...createMethods(http) };
}

export default createClient();
`
}

func renderReadme(pkgName, baseURL string, info genspec.Info, named []namedOperation) string {
	var b strings.Builder
	title := info.Title
	if title == "" {
		title = pkgName
	}
	fmt.Fprintf(&b, "# %s\n\n", pkgName)
	fmt.Fprintf(&b, "Generated TypeScript client for %s.\n\n", title)
	b.WriteString("```ts\n")
	fmt.Fprintf(&b, "import { createClient } from \"%s\";\n\n", pkgName)
	fmt.Fprintf(&b, "const api = createClient(%q);\n", baseURL)
	if len(named) > 0 {
		fmt.Fprintf(&b, "const res = await api.%s();\n", named[0].Name)
		b.WriteString("```\n\n")
	} else {
		b.WriteString("```\n\n")
	}
	b.WriteString("Every method takes `(params, extraParams, headers, signal)`. `extraParams` is appended to the\n")
	b.WriteString("query string verbatim (e.g. `&select=hash&limit=10`).\n\n")
	b.WriteString("## Methods\n\n")
	b.WriteString("| Method | Request | Summary |\n|---|---|---|\n")
	for _, n := range named {
		summary := strings.ReplaceAll(n.Op.Summary, "|", "\\|")
		fmt.Fprintf(&b, "| `%s` | `%s %s` | %s |\n", n.Name, strings.ToUpper(string(n.Op.Method)), n.Op.Path, summary)
	}
	return b.String()
}

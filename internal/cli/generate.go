package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/koiosgen/internal/emitter/tsemitter"
	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input          string
	Out            string
	PackageName    string
	BaseURL        string
	Envelope       string
	QueryPresence  string
	Profile        string
	SkipPaths      []string
	IncludeTags    []string
	ExcludeTags    []string
	Methods        []string
	PathPatterns   []string
	NameOverrides  []tsemitter.NameOverride
	Patches        []genspec.PatchRule
	ConfigPath     string
	Strict         bool
	Format         bool
	DumpOperations bool
	DryRun         bool
	Force          bool
	Verbose        bool

	Stdout io.Writer
	Stderr io.Writer

	// Set when the config file or a flag named the value explicitly, so the
	// profile does not fill it in.
	skipPathsSet bool
	patchesSet   bool
}

const (
	profileKoios = "koios"
	profileNone  = "none"
)

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Input:         "openapi.yaml",
		Out:           "dist",
		Envelope:      string(tsemitter.EnvelopeOK),
		QueryPresence: string(tsemitter.PresenceTruthy),
		Profile:       profileKoios,
	}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a TypeScript client from an OpenAPI/Swagger document",
		Long: "Generate a TypeScript client project from an OpenAPI/Swagger document. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  koiosgen generate --input koiosapi.yaml --out ./client
  koiosgen --config koiosgen.yaml generate --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "openapi.yaml", "Path or URL to the Swagger/OpenAPI document")
	flags.String("out", "dist", "Output directory for the generated project")
	flags.String("package-name", "", "npm package name (derived from the document title when omitted)")
	flags.String("base-url", "", "Default base URL of the generated client (first server when omitted)")
	flags.String("envelope", "", "Result discriminant of the generated client (ok|success)")
	flags.StringSlice("skip-paths", nil, "Paths to leave out (exact or glob); replaces the profile list")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include operations using these methods (get, post)")
	flags.StringArray("path-patterns", nil, "Only include paths matching one of these regular expressions (repeatable)")
	flags.Bool("strict", false, "Treat document validation findings as fatal")
	flags.Bool("format", false, "Run prettier over the generated sources")
	flags.Bool("dump-operations", false, "Print the normalised operation list as JSON and exit")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()
	cfg.Stdout = cmd.OutOrStdout()
	cfg.Stderr = cmd.ErrOrStderr()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyProfile()

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"out", &cfg.Out},
		{"package-name", &cfg.PackageName},
		{"base-url", &cfg.BaseURL},
		{"envelope", &cfg.Envelope},
	}
	for _, s := range strs {
		if !flags.Changed(s.name) {
			continue
		}
		value, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}

	if flags.Changed("skip-paths") {
		value, err := flags.GetStringSlice("skip-paths")
		if err != nil {
			return err
		}
		cfg.SkipPaths = sanitizeTags(value)
		cfg.skipPathsSet = true
	}
	if flags.Changed("include-tags") {
		value, err := flags.GetStringSlice("include-tags")
		if err != nil {
			return err
		}
		cfg.IncludeTags = sanitizeTags(value)
	}
	if flags.Changed("exclude-tags") {
		value, err := flags.GetStringSlice("exclude-tags")
		if err != nil {
			return err
		}
		cfg.ExcludeTags = sanitizeTags(value)
	}
	if flags.Changed("methods") {
		value, err := flags.GetStringSlice("methods")
		if err != nil {
			return err
		}
		cfg.Methods = value
	}
	if flags.Changed("path-patterns") {
		value, err := flags.GetStringArray("path-patterns")
		if err != nil {
			return err
		}
		cfg.PathPatterns = sanitizeTags(value)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"strict", &cfg.Strict},
		{"format", &cfg.Format},
		{"dump-operations", &cfg.DumpOperations},
		{"dry-run", &cfg.DryRun},
		{"force", &cfg.Force},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range bools {
		if !flags.Changed(b.name) {
			continue
		}
		value, err := flags.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.PackageName = strings.TrimSpace(c.PackageName)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Envelope = strings.ToLower(strings.TrimSpace(c.Envelope))
	c.QueryPresence = strings.ToLower(strings.TrimSpace(c.QueryPresence))
	c.Profile = strings.ToLower(strings.TrimSpace(c.Profile))
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
	methods := sanitizeTags(c.Methods)
	for i, m := range methods {
		methods[i] = strings.ToLower(m)
	}
	c.Methods = methods
	c.PathPatterns = sanitizeTags(c.PathPatterns)
	if c.Envelope == "" {
		c.Envelope = string(tsemitter.EnvelopeOK)
	}
	if c.QueryPresence == "" {
		c.QueryPresence = string(tsemitter.PresenceTruthy)
	}
	if c.Profile == "" {
		c.Profile = profileKoios
	}
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return newUsageError("generate: --input is required (set via flag or config file)")
	}
	if c.Out == "" {
		return newUsageError("generate: --out must not be empty")
	}

	switch tsemitter.Envelope(c.Envelope) {
	case tsemitter.EnvelopeOK, tsemitter.EnvelopeSuccess:
	default:
		return newUsageError(fmt.Sprintf("generate: unsupported --envelope %q (allowed: ok, success)", c.Envelope))
	}
	switch tsemitter.QueryPresence(c.QueryPresence) {
	case tsemitter.PresenceTruthy, tsemitter.PresenceDefined:
	default:
		return newUsageError(fmt.Sprintf("generate: unsupported queryPresence %q (allowed: truthy, defined)", c.QueryPresence))
	}
	switch c.Profile {
	case profileKoios, profileNone:
	default:
		return newUsageError(fmt.Sprintf("generate: unknown profile %q (allowed: koios, none)", c.Profile))
	}

	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}

	for _, m := range c.Methods {
		switch genspec.HttpMethod(m) {
		case genspec.GET, genspec.POST:
		default:
			return newUsageError(fmt.Sprintf("generate: unsupported method %q (allowed: get, post)", m))
		}
	}
	for _, p := range c.PathPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return newUsageError(fmt.Sprintf("generate: invalid path pattern %q: %v", p, err))
		}
	}

	for i, o := range c.NameOverrides {
		if strings.TrimSpace(o.Path) == "" || strings.TrimSpace(o.Suffix) == "" {
			return newUsageError(fmt.Sprintf("generate: nameOverrides[%d]: path and suffix are required", i))
		}
	}

	return nil
}

// applyProfile fills in what the config left unset from the selected
// profile. The koios profile carries the corrections the published Koios
// document needs; none carries nothing. The built-in name overrides apply
// under every profile, and configured ones are added after them.
func (c *GenerateConfig) applyProfile() {
	koios := c.Profile == profileKoios
	if !c.patchesSet && koios {
		c.Patches = genspec.KoiosPatchRules()
	}
	if !c.skipPathsSet && koios {
		c.SkipPaths = []string{"/ogmios", "/submittx"}
	}
	c.NameOverrides = tsemitter.MergeNameOverrides(c.NameOverrides)
}

// loadOperations runs the load, dereference, patch and normalise stages.
func loadOperations(ctx context.Context, cfg *GenerateConfig) (*genspec.Document, []genspec.OperationRecord, error) {
	doc, err := genspec.Load(ctx, cfg.Input,
		genspec.WithStrictValidation(cfg.Strict),
		genspec.WithPatchRules(cfg.Patches),
	)
	if err != nil {
		return nil, nil, pipelineError(err)
	}
	for _, w := range doc.Warnings {
		warnf(cfg.Stderr, "%s", w)
	}
	infof(cfg, "[INFO] loaded %s (OpenAPI %s, %d patch rules)\n", doc.Location, doc.OpenAPI, len(cfg.Patches))

	ops, err := genspec.BuildOperations(doc,
		genspec.WithSkipPaths(cfg.SkipPaths),
		genspec.WithIncludeTags(cfg.IncludeTags),
		genspec.WithExcludeTags(cfg.ExcludeTags),
		genspec.WithMethods(toMethods(cfg.Methods)),
		genspec.WithPathPatterns(cfg.PathPatterns),
	)
	if err != nil {
		return nil, nil, pipelineError(err)
	}
	infof(cfg, "[INFO] %d operations after filters\n", len(ops))
	return doc, ops, nil
}

func toMethods(list []string) []genspec.HttpMethod {
	if len(list) == 0 {
		return nil
	}
	out := make([]genspec.HttpMethod, len(list))
	for i, m := range list {
		out[i] = genspec.HttpMethod(m)
	}
	return out
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	doc, ops, err := loadOperations(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.DumpOperations {
		return dumpOperations(stdout(cfg), ops, cfg.NameOverrides)
	}

	// Ensure outDir is absolute only for display; the emitter handles actual creation/writes
	absOut := cfg.Out
	if ap, err := filepath.Abs(cfg.Out); err == nil {
		absOut = ap
	}

	res, err := tsemitter.Emit(ctx, ops, tsemitter.Options{
		OutDir:        cfg.Out,
		PackageName:   cfg.PackageName,
		BaseURL:       cfg.BaseURL,
		Info:          genspec.DocumentInfo(doc),
		Envelope:      tsemitter.Envelope(cfg.Envelope),
		QueryPresence: tsemitter.QueryPresence(cfg.QueryPresence),
		NameOverrides: cfg.NameOverrides,
		Force:         cfg.Force,
		DryRun:        cfg.DryRun,
		Format:        cfg.Format,
		Verbose:       cfg.Verbose,
		Log:           cfg.Stderr,
	})
	if err != nil {
		return pipelineError(err)
	}
	for _, d := range res.Diagnostics {
		warnf(cfg.Stderr, "%s", d)
	}

	if cfg.DryRun {
		paths := make([]string, 0, len(res.Planned))
		for _, p := range res.Planned {
			paths = append(paths, p.RelPath)
		}
		printPlan(stdout(cfg), absOut, paths)
		return nil
	}
	fmt.Fprintf(stdout(cfg), "Generated %s (%d methods) in %s\n", res.PackageName, len(res.Methods), absOut)
	return nil
}

type operationSummary struct {
	Name     string   `json:"name"`
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Source   string   `json:"paramSource,omitempty"`
	Params   []string `json:"params,omitempty"`
	Required []string `json:"required,omitempty"`
	Status   string   `json:"responseStatus,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func dumpOperations(w io.Writer, ops []genspec.OperationRecord, overrides []tsemitter.NameOverride) error {
	if err := tsemitter.CheckUnique(ops, overrides); err != nil {
		return pipelineError(err)
	}
	out := make([]operationSummary, 0, len(ops))
	for _, op := range ops {
		name, err := tsemitter.DeriveName(op.Path, op.Method, overrides)
		if err != nil {
			name = ""
		}
		sig := tsemitter.BuildSignature(op)
		s := operationSummary{
			Name:     name,
			Method:   strings.ToUpper(string(op.Method)),
			Path:     op.Path,
			Source:   string(sig.Source),
			Status:   op.ResponseStatus,
			Warnings: op.Warnings,
		}
		for _, p := range sig.Params {
			s.Params = append(s.Params, p.Name)
			if p.Required {
				s.Required = append(s.Required, p.Name)
			}
		}
		out = append(out, s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func printPlan(w io.Writer, outDir string, relPaths []string) {
	fmt.Fprintf(w, "Planned writes to %s (%d files):\n", outDir, len(relPaths))
	for _, p := range relPaths {
		fmt.Fprintf(w, "- %s\n", p)
	}
}

func stdout(cfg *GenerateConfig) io.Writer {
	if cfg.Stdout != nil {
		return cfg.Stdout
	}
	return os.Stdout
}

func warnf(w io.Writer, format string, args ...any) {
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "[WARN] "+format+"\n", args...)
}

func infof(cfg *GenerateConfig, format string, args ...any) {
	if !cfg.Verbose {
		return
	}
	w := cfg.Stderr
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, format, args...)
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		fieldErr := func(err error) error {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
		var err error
		switch normalizeKey(key) {
		case "input":
			cfg.Input, err = valueAsString(value)
		case "out":
			cfg.Out, err = valueAsString(value)
		case "packagename":
			cfg.PackageName, err = valueAsString(value)
		case "baseurl":
			cfg.BaseURL, err = valueAsString(value)
		case "envelope":
			cfg.Envelope, err = valueAsString(value)
		case "querypresence":
			cfg.QueryPresence, err = valueAsString(value)
		case "profile":
			cfg.Profile, err = valueAsString(value)
		case "skippaths":
			cfg.SkipPaths, err = valueAsStringSlice(value)
			cfg.skipPathsSet = true
		case "includetags":
			var list []string
			list, err = valueAsStringSlice(value)
			cfg.IncludeTags = sanitizeTags(list)
		case "excludetags":
			var list []string
			list, err = valueAsStringSlice(value)
			cfg.ExcludeTags = sanitizeTags(list)
		case "methods":
			cfg.Methods, err = valueAsStringSlice(value)
		case "pathpatterns":
			cfg.PathPatterns, err = valueAsStringSlice(value)
		case "nameoverrides":
			cfg.NameOverrides, err = decodeList[tsemitter.NameOverride](value)
		case "patches":
			cfg.Patches, err = decodeList[genspec.PatchRule](value)
			cfg.patchesSet = true
		case "strict":
			cfg.Strict, err = valueAsBool(value)
		case "format":
			cfg.Format, err = valueAsBool(value)
		case "dumpoperations":
			cfg.DumpOperations, err = valueAsBool(value)
		case "dryrun":
			cfg.DryRun, err = valueAsBool(value)
		case "force":
			cfg.Force, err = valueAsBool(value)
		case "verbose":
			cfg.Verbose, err = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if err != nil {
			return fieldErr(err)
		}
	}

	return nil
}

// decodeList re-decodes a generic YAML value into a typed list, rejecting
// unknown fields.
func decodeList[T any](v any) ([]T, error) {
	out := []T{}
	if v == nil {
		return out, nil
	}
	if _, ok := v.([]any); !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

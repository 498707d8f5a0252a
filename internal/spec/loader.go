package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError       ErrorCode = "InputError"
	NetworkError     ErrorCode = "NetworkError"
	ParseError       ErrorCode = "ParseError"
	ValidationError  ErrorCode = "ValidationError"
	ConversionError  ErrorCode = "ConversionError"
	DereferenceError ErrorCode = "DereferenceError"
	PatchError       ErrorCode = "PatchError"
)

// Stage names the pipeline stage an error code belongs to.
func (c ErrorCode) Stage() string {
	switch c {
	case DereferenceError:
		return "dereference"
	case PatchError:
		return "patch"
	default:
		return "load"
	}
}

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1tip/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// StrictValidation turns kin-openapi validation findings into a fatal
	// ValidationError. When false they are recorded as Document.Warnings.
	StrictValidation bool
	// SkipValidation disables the kin-openapi pass entirely.
	SkipValidation bool
	// Patches are applied after dereferencing, in order.
	Patches []PatchRule
}

// DefaultSettings returns recommended defaults. No patch rules are applied
// unless configured.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option  { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option             { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option  { return func(s *Settings) { s.BackoffBase = d } }
func WithStrictValidation(strict bool) Option { return func(s *Settings) { s.StrictValidation = strict } }
func WithSkipValidation(skip bool) Option     { return func(s *Settings) { s.SkipValidation = skip } }

// WithPatchRules replaces the patch rule list.
func WithPatchRules(rules []PatchRule) Option {
	return func(s *Settings) { s.Patches = append([]PatchRule(nil), rules...) }
}

// Load reads an OpenAPI document, converts Swagger v2.0 to v3 when needed,
// dereferences every internal $ref, applies the configured patch rules and
// validates the result.
//
// input may be a filesystem path or an http/https URL. file:// URLs are blocked.
// A failed read or fetch is fatal; fetches are retried only for transient
// failures.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	raw, location, err := readInput(ctx, input, settings)
	if err != nil {
		return nil, err
	}
	return load(ctx, raw, location, settings)
}

// LoadData is Load for in-memory YAML or JSON text.
func LoadData(ctx context.Context, data []byte, location string, opts ...Option) (*Document, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	return load(ctx, data, location, settings)
}

func readInput(ctx context.Context, input string, settings Settings) ([]byte, string, error) {
	// Classify input as URL or file path.
	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""

	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, "", &SpecError{Code: InputError, Message: "spec: file:// URLs are blocked", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		raw, fetchErr := fetchWithRetry(ctx, input, settings)
		if fetchErr != nil {
			return nil, "", &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, fetchErr), Location: input, Cause: fetchErr}
		}
		return raw, input, nil
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
	}
	raw, rerr := os.ReadFile(abs)
	if rerr != nil {
		return nil, "", &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, rerr), Location: abs, Cause: rerr}
	}
	return raw, abs, nil
}

func load(ctx context.Context, raw []byte, location string, settings Settings) (*Document, error) {
	version, derr := detectSpecVersion(raw)
	if derr != nil {
		return nil, &SpecError{Code: ParseError, Message: derr.Error(), Location: location, Cause: derr}
	}

	var warnings []string
	if version == 2 {
		// Preprocess incompatible v2 constructs to improve conversion success.
		if fixed, changed, _ := preprocessV2ForCompatibility(raw); changed {
			raw = fixed
		}
		v3doc, err := convertV2ToV3(raw)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: location, Cause: err}
		}
		if raw, err = json.Marshal(v3doc); err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("encode converted document: %v", err), Location: location, Cause: err}
		}
		warnings = append(warnings, "converted from Swagger 2.0; path order follows the converted document")
	}

	root, err := parseTree(raw)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse spec: %v", err), Location: location, Cause: err}
	}
	doc := &Document{
		Root:     root,
		Location: location,
		OpenAPI:  scalarString(mappingValue(root, "openapi")),
		Warnings: warnings,
	}

	if err := Dereference(doc); err != nil {
		return nil, err
	}
	if err := ApplyPatches(doc, settings.Patches); err != nil {
		return nil, err
	}
	if !settings.SkipValidation {
		if err := validate(ctx, doc, settings.StrictValidation); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// validate runs kin-openapi over the dereferenced tree.
func validate(ctx context.Context, doc *Document, strict bool) error {
	data, err := doc.Marshal()
	if err != nil {
		return &SpecError{Code: ParseError, Message: fmt.Sprintf("encode document: %v", err), Location: doc.Location, Cause: err}
	}
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	t, err := loader.LoadFromData(data)
	if err == nil {
		err = t.Validate(ctx)
	}
	if err == nil {
		return nil
	}
	if strict {
		return mapValidateOrParseErr(err, doc.Location)
	}
	doc.Warnings = append(doc.Warnings, "validation: "+err.Error())
	return nil
}

// detectSpecVersion returns 3 for OpenAPI v3, 2 for Swagger v2, else error.
func detectSpecVersion(data []byte) (int, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return 0, fmt.Errorf("parse spec: %w", err)
	}
	// Check OpenAPI v3 key
	if v, ok := root["openapi"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "3.") {
			return 3, nil
		}
	}
	// Check Swagger v2 key
	if v, ok := root["swagger"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "2.") {
			return 2, nil
		}
	}
	return 0, fmt.Errorf("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

// convertV2ToV3 decodes Swagger text through its JSON form, since openapi2.T
// only carries JSON struct tags.
func convertV2ToV3(data []byte) (*openapi3.T, error) {
	tree, err := parseTree(data)
	if err != nil {
		return nil, err
	}
	js, err := json.Marshal(nodeValue(tree))
	if err != nil {
		return nil, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(js, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil && resp.StatusCode < 300 {
			defer resp.Body.Close()
			return io.ReadAll(resp.Body)
		}
		if err != nil {
			lastErr = err
		} else {
			// HTTP error
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				lastErr = fmt.Errorf("transient http error %d", resp.StatusCode)
			} else {
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
		}
		if i == attempts-1 {
			break
		}
		// Backoff before next attempt
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

func mapValidateOrParseErr(err error, location string) error {
	// Try to extract JSON Pointer where available.
	pointer := extractJSONPointer(err)
	code := ValidationError
	// Heuristics: some loader errors are parse errors.
	if strings.Contains(strings.ToLower(err.Error()), "parse") || strings.Contains(strings.ToLower(err.Error()), "invalid character") {
		code = ParseError
	}
	return &SpecError{Code: code, Message: err.Error(), Location: location, JSONPointer: pointer, Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'\"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	// Unwrap MultiError and take the first for brevity.
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		// v0.116 uses JSONPointer() []string
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	// Fallback: parse from error message if a pointer literal appears.
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}

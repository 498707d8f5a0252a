package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mark3labs/koiosgen/internal/client"
	"github.com/mark3labs/koiosgen/internal/emitter/tsemitter"
	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// CallConfig captures one invocation of the call command.
type CallConfig struct {
	*GenerateConfig
	Operation string
	Params    map[string]any
	Extra     string
	Header    http.Header
	Timeout   time.Duration
}

var callRunner = runCall

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <Operation>",
		Short: "Invoke one operation of the document the way the generated client would",
		Long: "Load the document, bind its operations by generated method name and perform one request. " +
			"The normalised result envelope is printed as JSON.",
		Example: strings.TrimSpace(`  koiosgen call Tip --input koiosapi.yaml
  koiosgen call AccountInfo --param '_stake_addresses=["stake1u..."]' --extra '&select=status'`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			cfg := &CallConfig{GenerateConfig: gen, Operation: args[0]}
			flags := cmd.Flags()
			rawParams, err := flags.GetStringArray("param")
			if err != nil {
				return err
			}
			if cfg.Params, err = parseParams(rawParams); err != nil {
				return err
			}
			rawHeaders, err := flags.GetStringArray("header")
			if err != nil {
				return err
			}
			if cfg.Header, err = parseHeaders(rawHeaders); err != nil {
				return err
			}
			if cfg.Extra, err = flags.GetString("extra"); err != nil {
				return err
			}
			if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
				return err
			}
			return callRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "openapi.yaml", "Path or URL to the Swagger/OpenAPI document")
	flags.String("base-url", "", "Base URL to call (first server of the document when omitted)")
	flags.String("envelope", "", "Result discriminant to print (ok|success)")
	flags.Bool("strict", false, "Treat document validation findings as fatal")
	flags.Bool("dry-run", false, "Print the request instead of sending it")
	flags.StringArray("param", nil, "Parameter as name=value; values are parsed as JSON when they parse, else taken as strings")
	flags.String("extra", "", "Raw query suffix appended verbatim, e.g. '&limit=10'")
	flags.StringArray("header", nil, "Request header as Name=value")
	flags.Duration("timeout", 30*time.Second, "Request timeout")

	return cmd
}

func runCall(ctx context.Context, cfg *CallConfig) error {
	doc, ops, err := loadOperations(ctx, cfg.GenerateConfig)
	if err != nil {
		return err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if servers := genspec.DocumentInfo(doc).Servers; len(servers) > 0 {
			baseURL = servers[0]
		} else {
			baseURL = tsemitter.DefaultBaseURL
		}
	}

	c, err := client.New(client.NewHTTPTransport(baseURL, cfg.Timeout), ops,
		client.WithEnvelope(tsemitter.Envelope(cfg.Envelope)),
		client.WithQueryPresence(tsemitter.QueryPresence(cfg.QueryPresence)),
		client.WithNameOverrides(cfg.NameOverrides),
	)
	if err != nil {
		return pipelineError(err)
	}

	req := client.Request{Params: cfg.Params, ExtraParams: cfg.Extra, Header: cfg.Header}
	if cfg.DryRun {
		p, err := c.Prepare(cfg.Operation, req)
		if err != nil {
			return newUsageError(fmt.Sprintf("call: %v (available: %s)", err, strings.Join(c.Methods(), ", ")))
		}
		fmt.Fprintf(stdout(cfg.GenerateConfig), "%s %s%s\n", strings.ToUpper(string(p.Method)), strings.TrimRight(baseURL, "/"), p.URL)
		if p.Body != nil {
			fmt.Fprintf(stdout(cfg.GenerateConfig), "%s\n", p.Body)
		}
		return nil
	}

	infof(cfg.GenerateConfig, "[INFO] calling %s against %s\n", cfg.Operation, baseURL)
	res, err := c.Call(ctx, cfg.Operation, req)
	if err != nil {
		return newUsageError(fmt.Sprintf("call: %v (available: %s)", err, strings.Join(c.Methods(), ", ")))
	}
	enc, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("call: encode result: %w", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, enc, "", "  "); err != nil {
		return fmt.Errorf("call: encode result: %w", err)
	}
	pretty.WriteByte('\n')
	if _, err := stdout(cfg.GenerateConfig).Write(pretty.Bytes()); err != nil {
		return err
	}
	if !res.OK {
		if res.Status != 0 {
			return &stageError{stage: "call", msg: fmt.Sprintf("%s failed with status %d", cfg.Operation, res.Status)}
		}
		return &stageError{stage: "call", msg: fmt.Sprintf("%s failed: %v", cfg.Operation, res.Error)}
	}
	return nil
}

func parseParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, newUsageError(fmt.Sprintf("call: --param %q: want name=value", kv))
		}
		out[name] = paramValue(value)
	}
	return out, nil
}

// paramValue decodes value as JSON when it is a complete JSON document and
// falls back to the literal string.
func paramValue(value string) any {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return value
	}
	return v
}

func parseHeaders(raw []string) (http.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	h := http.Header{}
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, newUsageError(fmt.Sprintf("call: --header %q: want Name=value", kv))
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/koiosgen/internal/emitter/tsemitter"
	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
	Stdout     io.Writer
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample koiosgen configuration file",
		Long:  "Scaffold a commented koiosgen configuration file that documents available options and the built-in Koios corrections.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
				Stdout:     cmd.OutOrStdout(),
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", "koiosgen.yaml", "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = "koiosgen.yaml"
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content, err := sampleConfig()
	if err != nil {
		return fmt.Errorf("init: render sample: %w", err)
	}

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	w := cfg.Stdout
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfig renders the commented header followed by the built-in tables
// as live YAML, so the written file round-trips through the loader.
func sampleConfig() (string, error) {
	tables := struct {
		Profile       string                   `yaml:"profile"`
		SkipPaths     []string                 `yaml:"skipPaths"`
		Patches       []genspec.PatchRule      `yaml:"patches"`
		NameOverrides []tsemitter.NameOverride `yaml:"nameOverrides"`
	}{
		Profile:       profileKoios,
		SkipPaths:     []string{"/ogmios", "/submittx"},
		Patches:       genspec.KoiosPatchRules(),
		NameOverrides: tsemitter.DefaultNameOverrides(),
	}
	b, err := yaml.Marshal(tables)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sampleConfigHeader) + "\n\n" + sampleConfigTablesComment + string(b), nil
}

// sampleConfigHeader documents the scalar options.
const sampleConfigHeader = `# koiosgen configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Path or URL to the Swagger/OpenAPI document (http/https or local file).
# input: ./koiosapi.yaml

# Output directory for the generated TypeScript project.
# out: ./dist

# npm package name. Derived from the document title when omitted.
# packageName: "@cardano/koios-client"

# Default base URL baked into the client. First server of the document when omitted.
# baseUrl: https://api.koios.rest/api/v1

# Result discriminant of the generated client (ok|success).
# envelope: ok

# When a GET parameter adds a query fragment: truthy omits 0, "" and false;
# defined omits only missing values.
# queryPresence: truthy

# Only include operations with these tags (comma-separated or list).
# includeTags: [Network, Block]

# Exclude operations with these tags (comma-separated or list).
# excludeTags: [Ogmios]

# Only include operations using these methods (get, post).
# methods: [get]

# Only include paths matching one of these regular expressions.
# pathPatterns: ["^/pool_"]

# Treat document validation findings as fatal.
# strict: false

# Run prettier over the generated sources (needs npx).
# format: false

# Preview planned outputs without writing files.
# dryRun: false

# Overwrite non-empty output directory.
# force: false

# Enable verbose logging.
# verbose: false`

const sampleConfigTablesComment = `# Built-in Koios tables. Listing skipPaths or patches here replaces the
# profile's copy; profile: none starts them empty. nameOverrides are added to
# the built-in /asset_info entry, which always applies.
`

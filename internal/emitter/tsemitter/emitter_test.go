package tsemitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func TestEmit_DryRun_Plan(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ops, info := loadOps(t, tipBlockSpec)

	res, err := Emit(context.Background(), ops, Options{OutDir: dir, Info: info, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "koios-api", res.PackageName)

	var rels []string
	for _, pf := range res.Planned {
		rels = append(rels, pf.RelPath)
		assert.Positive(t, pf.Size, pf.RelPath)
	}
	assert.Equal(t, []string{
		".editorconfig", ".prettierrc.json", "README.md", "package.json",
		"src/index.ts", "src/methods.ts", "src/types.ts", "tsconfig.json",
	}, rels)

	// Dry-run should not have written files
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

// Two operations, one GET without parameters and one POST with a required
// body property, sharing a response shape.
func TestEmit_TipAndBlockInfo(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ops, info := loadOps(t, tipBlockSpec)

	res, err := Emit(context.Background(), ops, Options{OutDir: dir, Info: info, PackageName: "@cardano/koios-client"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tip", "BlockInfo"}, res.Methods)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "@cardano/koios-client", res.PackageName)

	methods := readFile(t, dir, "src/methods.ts")
	entries := regexp.MustCompile(`(?m)^  (\w+): async \(`).FindAllStringSubmatch(methods, -1)
	require.Len(t, entries, 2)
	assert.Equal(t, "Tip", entries[0][1])
	assert.Equal(t, "BlockInfo", entries[1][1])
	assert.Contains(t, methods, "    params?: Record<string, never>,\n")
	assert.Contains(t, methods, "    params: { _block_hashes: string[] },\n")
	assert.Contains(t, methods, "      { _block_hashes: params?._block_hashes },\n")

	typesTS := readFile(t, dir, "src/types.ts")
	aliases := regexp.MustCompile(`(?m)^export type (\w+)Response = I(\w+)\[\];$`).FindAllStringSubmatch(typesTS, -1)
	require.Len(t, aliases, 2)
	assert.Equal(t, []string{"Tip", "Tip"}, aliases[0][1:])
	assert.Equal(t, []string{"BlockInfo", "BlockInfo"}, aliases[1][1:])

	body := func(name string) string {
		m := regexp.MustCompile(`(?s)export interface ` + name + ` \{\n(.*?)\n\}`).FindStringSubmatch(typesTS)
		require.NotNil(t, m, name)
		return m[1]
	}
	assert.Contains(t, body("ITip"), "  epoch_no: number;")
	assert.Equal(t, body("ITip"), body("IBlockInfo"))

	index := readFile(t, dir, "src/index.ts")
	assert.Contains(t, index, `export const BASE_URL = "https://api.koios.rest/api/v1";`)
	assert.Contains(t, index, "({ ok: true, status: response.status, data: response.data })")
	assert.Contains(t, index, "return { http, ...createMethods(http) };")

	var pkg map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, dir, "package.json")), &pkg))
	assert.Equal(t, "@cardano/koios-client", pkg["name"])
	assert.Equal(t, "1.0.0", pkg["version"])
	assert.Contains(t, pkg["dependencies"], "axios")

	readme := readFile(t, dir, "README.md")
	assert.Contains(t, readme, "| `BlockInfo` | `POST /block_info` | Block Information |")
}

func TestEmit_MalformedOperationDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	ops, info := loadOps(t, `openapi: 3.0.2
info: {title: Koios API, version: 1.0.0}
paths:
  /broken:
    get:
      responses:
        "200":
          description: no content
  /weird:
    get:
      responses:
        "200":
          content:
            application/json:
              schema: {type: array, items: {type: mystery}}
  /tip:
    get:
      responses:
        "200":
          content:
            application/json:
              schema:
                type: array
                items:
                  type: object
                  properties:
                    hash: {type: string}
`)
	dir := t.TempDir()
	res, err := Emit(context.Background(), ops, Options{OutDir: dir, Info: info})
	require.NoError(t, err)
	assert.Equal(t, []string{"Broken", "Weird", "Tip"}, res.Methods)

	typesTS := readFile(t, dir, "src/types.ts")
	assert.Contains(t, typesTS, "export interface IBroken {}")
	assert.Contains(t, typesTS, "export type IWeird = any;")
	assert.Contains(t, typesTS, "export interface ITip {\n  hash: string;\n}")

	var ops2 []string
	for _, d := range res.Diagnostics {
		ops2 = append(ops2, d.Operation)
	}
	assert.Contains(t, ops2, "get /broken")
	assert.Contains(t, ops2, "get /weird")
}

func TestEmit_NonEmptyDirRequiresForce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))
	ops, info := loadOps(t, tipBlockSpec)

	_, err := Emit(context.Background(), ops, Options{OutDir: dir, Info: info})
	var ee *EmitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, StageWrite, ee.Stage)
	assert.Contains(t, ee.Message, "not empty")

	_, err = Emit(context.Background(), ops, Options{OutDir: dir, Info: info, Force: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "src", "methods.ts"))
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
}

func TestEmit_Collision(t *testing.T) {
	t.Parallel()
	ops := []genspec.OperationRecord{
		{Path: "/a_b", Method: genspec.GET},
		{Path: "/a b", Method: genspec.GET},
	}
	_, err := Emit(context.Background(), ops, Options{OutDir: t.TempDir(), DryRun: true})
	var ee *EmitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "get /a b", ee.Operation)
}

func TestEmit_BuiltInOverrideAlwaysApplies(t *testing.T) {
	t.Parallel()
	ops := []genspec.OperationRecord{
		{Path: "/asset_info", Method: genspec.GET},
		{Path: "/asset_info", Method: genspec.POST},
	}
	res, err := Emit(context.Background(), ops, Options{OutDir: t.TempDir(), DryRun: true, NameOverrides: []NameOverride{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AssetInfo", "AssetInfoBulk"}, res.Methods)
}

func TestEmit_InvalidOptions(t *testing.T) {
	t.Parallel()
	_, err := Emit(context.Background(), nil, Options{})
	require.Error(t, err)
	_, err = Emit(context.Background(), nil, Options{OutDir: "x", Envelope: "status"})
	require.ErrorContains(t, err, "unknown envelope")
	_, err = Emit(context.Background(), nil, Options{OutDir: "x", QueryPresence: "maybe"})
	require.ErrorContains(t, err, "unknown query presence")
}

func TestEmit_EnvelopeSuccessAndBaseURL(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ops, info := loadOps(t, tipBlockSpec)
	_, err := Emit(context.Background(), ops, Options{
		OutDir:   dir,
		Info:     info,
		BaseURL:  "https://preprod.koios.rest/api/v1",
		Envelope: EnvelopeSuccess,
	})
	require.NoError(t, err)
	index := readFile(t, dir, "src/index.ts")
	assert.Contains(t, index, `"https://preprod.koios.rest/api/v1"`)
	assert.Contains(t, index, "success: false")
	assert.Contains(t, readFile(t, dir, "src/methods.ts"), "{ success: true; status: number; data: T }")
}

// Not parallel: swaps the package-level formatter.
func TestEmit_Formatter(t *testing.T) {
	orig := runFormatter
	t.Cleanup(func() { runFormatter = orig })

	var gotDir string
	runFormatter = func(ctx context.Context, dir string) error {
		gotDir = dir
		return nil
	}
	ops, info := loadOps(t, tipBlockSpec)
	dir := t.TempDir()
	var log bytes.Buffer
	_, err := Emit(context.Background(), ops, Options{OutDir: dir, Info: info, Format: true, Verbose: true, Log: &log})
	require.NoError(t, err)
	assert.Equal(t, dir, gotDir)
	assert.Contains(t, log.String(), "[INFO] formatted sources")

	boom := errors.New("prettier not installed")
	runFormatter = func(ctx context.Context, dir string) error { return boom }
	_, err = Emit(context.Background(), ops, Options{OutDir: t.TempDir(), Info: info, Format: true})
	var ee *EmitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, StageFormat, ee.Stage)
	assert.ErrorIs(t, err, boom)
}

func TestEmit_Deterministic(t *testing.T) {
	t.Parallel()
	ops, info := loadOps(t, tipBlockSpec)
	a, b := t.TempDir(), t.TempDir()
	_, err := Emit(context.Background(), ops, Options{OutDir: a, Info: info})
	require.NoError(t, err)
	_, err = Emit(context.Background(), ops, Options{OutDir: b, Info: info})
	require.NoError(t, err)
	for _, rel := range []string{"src/methods.ts", "src/types.ts", "src/index.ts", "package.json", "README.md"} {
		assert.Equal(t, readFile(t, a, rel), readFile(t, b, rel), rel)
	}
}

func TestPackageNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "koios-api", derivePackageName("Koios API"))
	assert.Equal(t, "@scope/my-pkg", sanitizePackageName(" @Scope/My Pkg "))
	assert.Equal(t, "abc", sanitizePackageName("--a!b?c.."))
	assert.Equal(t, "1.2.3", packageVersion("v1.2.3"))
	assert.Equal(t, "0.1.0", packageVersion("latest"))
	assert.False(t, strings.Contains(sanitizePackageName("a/b"), "/"))
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/provenancekit/fossilforest/internal/canonical"
	"github.com/provenancekit/fossilforest/internal/forest"
	"github.com/provenancekit/fossilforest/internal/ledger"
	"github.com/provenancekit/fossilforest/internal/merkle"
	"github.com/provenancekit/fossilforest/internal/snapshot"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "forestctl",
	Short: "Fossil Forest provenance CLI",
	Long: `forestctl inspects and verifies content-addressed provenance data.

It canonicalizes payloads, rebuilds Merkle forests from fossil snapshots,
emits inclusion proofs, and replay-verifies hash-chain ledger dumps.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.forestctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		viper.SetDefault("forest.stale", "24h")
		viper.SetDefault("forest.max_trees", 128)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.forestctl/config.yaml)")

	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(rootsCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(versionCmd)
}

// forestConfig builds the forest bounds from viper (config file or env).
func forestConfig() forest.Config {
	stale := viper.GetDuration("forest.stale")
	if stale <= 0 {
		stale = 24 * time.Hour
	}
	maxTrees := viper.GetInt("forest.max_trees")
	if maxTrees <= 0 {
		maxTrees = 128
	}
	return forest.Config{Stale: stale, MaxTrees: maxTrees}
}

// readPayload reads one JSON payload from a file path or stdin ("-" or no arg).
func readPayload(args []string) (map[string]any, error) {
	var raw []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

// loadForest rebuilds a forest from a snapshot file.
func loadForest(path string) (*forest.Forest, []snapshot.Fossil, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	fossils, err := snapshot.Read(file)
	if err != nil {
		return nil, nil, err
	}
	f := forest.New(forestConfig(), zap.NewNop())
	if err := snapshot.Replay(context.Background(), f, nil, fossils); err != nil {
		return nil, nil, err
	}
	return f, fossils, nil
}

// ── hash ─────────────────────────────────────────────────────────────────────

var (
	hashPrintCanonical bool
	hashAsLeaf         bool
)

var hashCmd = &cobra.Command{
	Use:   "hash [payload.json|-]",
	Short: "Canonicalize a JSON payload and print its SHA-256 digest",
	Long: `Hash serializes a JSON object to its canonical RFC 8785 form and prints
the lowercase hex SHA-256 digest.

With --leaf, the payload is hashed under leaf rules: a declared "digest"
field is returned verbatim; otherwise the digest field is excluded before
hashing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(args)
		if err != nil {
			return err
		}
		if hashPrintCanonical {
			canon, err := canonical.Canonicalize(payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(canon))
		}
		var digest string
		if hashAsLeaf {
			digest, err = canonical.LeafHash(payload)
		} else {
			digest, err = canonical.ComputeHash(payload)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), digest)
		return nil
	},
}

func init() {
	hashCmd.Flags().BoolVar(&hashPrintCanonical, "canonical", false, "Also print the canonical byte form")
	hashCmd.Flags().BoolVar(&hashAsLeaf, "leaf", false, "Hash under leaf rules (digest passthrough/exclusion)")
}

// ── roots ────────────────────────────────────────────────────────────────────

var rootsFormat string

var rootsCmd = &cobra.Command{
	Use:   "roots <snapshot.jsonl>",
	Short: "Rebuild a forest from a fossil snapshot and print branch roots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, fossils, err := loadForest(args[0])
		if err != nil {
			return err
		}
		roots := f.Roots()

		if rootsFormat == "json" {
			out, err := json.MarshalIndent(roots, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}

		ids := make([]string, 0, len(roots))
		for id := range roots {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "THREAD\tROOT")
		for _, id := range ids {
			fmt.Fprintf(w, "%s\t%s\n", id, roots[id])
		}
		w.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d fossils across %d threads\n", len(fossils), len(roots))
		return nil
	},
}

func init() {
	rootsCmd.Flags().StringVar(&rootsFormat, "format", "text", "Output format: text or json")
}

// ── prove ────────────────────────────────────────────────────────────────────

var (
	proveThread string
	proveLeaf   string
)

// proofDocument is the self-contained output of prove: everything an
// external verifier needs, with no access to the forest.
type proofDocument struct {
	ThreadID string       `json:"thread_id"`
	LeafID   string       `json:"leaf_id"`
	LeafHash string       `json:"leaf_hash"`
	RootHash string       `json:"root_hash"`
	Proof    merkle.Proof `json:"proof"`
}

var proveCmd = &cobra.Command{
	Use:   "prove <snapshot.jsonl> --thread <id> --leaf <id>",
	Short: "Emit an inclusion proof for one leaf of one branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, fossils, err := loadForest(args[0])
		if err != nil {
			return err
		}

		proof, root, ok := f.Proof(proveThread, proveLeaf)
		if !ok {
			return fmt.Errorf("no leaf %q in thread %q", proveLeaf, proveThread)
		}

		// Recompute the leaf hash from the first matching fossil, mirroring
		// the first-match rule proof lookup uses for duplicate leaf ids.
		var leafHash string
		for _, fossil := range fossils {
			if fossil.ThreadID == proveThread && fossil.LeafID == proveLeaf {
				leafHash, err = canonical.LeafHash(fossil.Payload)
				if err != nil {
					return err
				}
				break
			}
		}

		out, err := json.MarshalIndent(proofDocument{
			ThreadID: proveThread,
			LeafID:   proveLeaf,
			LeafHash: leafHash,
			RootHash: root,
			Proof:    proof,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	proveCmd.Flags().StringVar(&proveThread, "thread", "", "Thread (branch) id")
	proveCmd.Flags().StringVar(&proveLeaf, "leaf", "", "Leaf id")
	proveCmd.MarkFlagRequired("thread") //nolint:errcheck
	proveCmd.MarkFlagRequired("leaf")   //nolint:errcheck
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyLeafHash  string
	verifyRootHash  string
	verifyProofJSON string
	verifyProofFile string
)

var verifyCmd = &cobra.Command{
	Use:   "verify --leaf-hash <hex> --root <hex> (--proof <json>|--proof-file <file>)",
	Short: "Verify an inclusion proof against a published root hash",
	Long: `Verify folds an inclusion proof from the leaf hash upward and compares the
result to the root hash. It is a pure check: no snapshot or tree is needed.

The proof is an ordered JSON array of [sibling_hash, "L"|"R"] tuples, or a
proof document produced by "forestctl prove".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := []byte(verifyProofJSON)
		if verifyProofFile != "" {
			var err error
			raw, err = os.ReadFile(verifyProofFile)
			if err != nil {
				return fmt.Errorf("read proof: %w", err)
			}
		}
		if len(raw) == 0 {
			return fmt.Errorf("one of --proof or --proof-file is required")
		}

		leafHash, rootHash := verifyLeafHash, verifyRootHash
		var proof merkle.Proof
		if err := json.Unmarshal(raw, &proof); err != nil {
			// Not a bare proof array; try a full proof document.
			var doc proofDocument
			if docErr := json.Unmarshal(raw, &doc); docErr != nil {
				return fmt.Errorf("parse proof: %w", err)
			}
			proof = doc.Proof
			if leafHash == "" {
				leafHash = doc.LeafHash
			}
			if rootHash == "" {
				rootHash = doc.RootHash
			}
		}
		if leafHash == "" || rootHash == "" {
			return fmt.Errorf("--leaf-hash and --root are required unless the proof document carries them")
		}

		if !merkle.VerifyInclusion(leafHash, rootHash, proof) {
			fmt.Fprintln(cmd.OutOrStdout(), "INVALID")
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyLeafHash, "leaf-hash", "", "Leaf hash (lowercase hex SHA-256)")
	verifyCmd.Flags().StringVar(&verifyRootHash, "root", "", "Expected root hash")
	verifyCmd.Flags().StringVar(&verifyProofJSON, "proof", "", "Inclusion proof as inline JSON")
	verifyCmd.Flags().StringVar(&verifyProofFile, "proof-file", "", "File holding the inclusion proof")
}

// ── chain ────────────────────────────────────────────────────────────────────

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Hash-chain ledger operations",
}

var chainVerifyCmd = &cobra.Command{
	Use:   "verify <ledger.json>",
	Short: "Replay a dumped ledger chain and verify its integrity",
	Long: `Chain verify reads a JSON array of {hash, entry} records, replays it from
the genesis hash, and recomputes every entry hash. Any prev-hash or content
mismatch is reported with its index.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read chain: %w", err)
		}
		var chain []ledger.Record
		if err := json.Unmarshal(raw, &chain); err != nil {
			return fmt.Errorf("parse chain: %w", err)
		}
		if err := ledger.VerifyChain(chain); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "INVALID: %v\n", err)
			os.Exit(1)
		}
		tip := ledger.GenesisHash
		if len(chain) > 0 {
			tip = chain[len(chain)-1].Hash
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries, tip %s\n", len(chain), tip)
		return nil
	},
}

func init() {
	chainCmd.AddCommand(chainVerifyCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the forestctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "forestctl "+version)
	},
}

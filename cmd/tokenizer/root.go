package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// modelPath is the shared --model flag read by every subcommand.
	modelPath string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tokenizer",
	Short: "A GGUF-model-driven tokenizer CLI tool",
	Long: `Tokenizer is a CLI tool for tokenizing text against a GGUF model file.

It reads the vocabulary and tokenizer configuration straight out of a GGUF
container's metadata and dispatches to the matching engine (byte-level BPE,
SentencePiece/unigram, WordPiece, RWKV, Unigram-Viterbi, or PLaMo-2) based on
the model's declared kind. No model-specific subcommand or build flag is
needed; the same binary drives any supported model.

Common operations:
  - encode: Convert text to token IDs
  - decode: Convert token IDs back to text
  - info:   Display vocabulary and configuration details`,
	Example: `  # Encode text against a model file
  tokenizer encode --model model.gguf "Hello, world!"

  # Decode tokens
  tokenizer decode --model model.gguf 1 4 5

  # Show tokenizer info
  tokenizer info --model model.gguf`,
	SilenceUsage: true,
}

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tokenizer version %s\n", version)
		if commit != "none" {
			fmt.Printf("  commit:     %s\n", commit)
		}
		if buildDate != "unknown" {
			fmt.Printf("  built:      %s\n", buildDate)
		}
		if goVersion != "unknown" {
			fmt.Printf("  go version: %s\n", goVersion)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "", "path to a GGUF model file (required)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newEncodeCmd())
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newInfoCmd())
}

func requireModelPath() error {
	if modelPath == "" {
		return fmt.Errorf("--model is required")
	}
	return nil
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/gguftok/tokenizer"
)

var (
	// Decode command flags.
	decSkipSpecial bool
	decLstrip      bool
)

// newDecodeCmd creates the decode subcommand.
func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [token_ids...]",
		Short: "Decode token IDs to text",
		Long: `Decode token IDs back to text using the model's dispatched engine.

Token IDs can be provided as arguments or piped from stdin, separated by any
whitespace.`,
		Example: `  # Decode token IDs from arguments
  tokenizer decode --model model.gguf 1 4 5

  # Decode from stdin
  echo "1 4 5" | tokenizer decode --model model.gguf

  # Skip special tokens in output
  tokenizer decode --model model.gguf --skip-special 1 4 2`,
		RunE: runDecode,
	}

	cmd.Flags().BoolVar(&decSkipSpecial, "skip-special", false, "Skip special tokens in output")
	cmd.Flags().BoolVar(&decLstrip, "lstrip", false, "Trim leading whitespace from each token's piece")

	return cmd
}

func runDecode(_ *cobra.Command, args []string) error {
	if err := requireModelPath(); err != nil {
		return err
	}

	tok, err := tokenizer.Open(modelPath)
	if err != nil {
		return fmt.Errorf("failed to open model: %w", err)
	}

	var tokens []uint32
	if len(args) > 0 {
		for _, arg := range args {
			id, err := strconv.ParseUint(arg, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid token ID %q: %w", arg, err)
			}
			tokens = append(tokens, uint32(id))
		}
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Split(bufio.ScanWords)
		for scanner.Scan() {
			id, err := strconv.ParseUint(scanner.Text(), 10, 32)
			if err != nil {
				return fmt.Errorf("invalid token ID %q: %w", scanner.Text(), err)
			}
			tokens = append(tokens, uint32(id))
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	}

	if len(tokens) == 0 {
		return fmt.Errorf("no token IDs provided")
	}

	text, err := tok.DecodeWithOptions(tokens, tokenizer.DecodeOptions{
		SkipSpecialTokens:  decSkipSpecial,
		Lstrip:             decLstrip,
		IncludeSpecialText: true,
	})
	if err != nil {
		return fmt.Errorf("decode error: %w", err)
	}

	fmt.Print(text)
	return nil
}

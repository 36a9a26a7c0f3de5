package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentstation/gguftok/tokenizer"
)

// newInfoCmd creates the info subcommand.
func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Display tokenizer information",
		Long: `Display information about a GGUF model's tokenizer configuration,
including the dispatched engine, vocabulary size, and special tokens.`,
		Example: `  # Show tokenizer information
  tokenizer info --model model.gguf`,
		RunE: runInfo,
	}

	return cmd
}

func runInfo(_ *cobra.Command, _ []string) error {
	if err := requireModelPath(); err != nil {
		return err
	}

	tok, err := tokenizer.Open(modelPath)
	if err != nil {
		return fmt.Errorf("failed to open model: %w", err)
	}

	fmt.Println("Tokenizer Information")
	fmt.Println("=====================")
	fmt.Println()

	fmt.Println("Model Details:")
	fmt.Printf("  Model Type:        %s\n", tok.ModelType())
	if preType, ok := tok.PreType(); ok {
		fmt.Printf("  Pre-tokenizer:     %s\n", preType)
	}
	fmt.Printf("  Vocabulary Size:   %d tokens\n", tok.VocabSize())
	fmt.Printf("  BOS Token:         %d\n", tok.BOSToken())
	fmt.Printf("  EOS Token:         %d\n", tok.EOSToken())
	fmt.Println()

	specials := sortedUint32(tok.SpecialTokenIDs())
	fmt.Printf("Special Tokens (%d):\n", len(specials))
	for _, id := range specials {
		piece, err := tok.TokenToPiece(id)
		if err != nil {
			continue
		}
		fmt.Printf("  %-30s -> %d\n", piece, id)
	}

	return nil
}

// sortedUint32 returns ids sorted ascending.
func sortedUint32(ids []uint32) []uint32 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

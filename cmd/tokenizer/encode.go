package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/gguftok/tokenizer"
)

var (
	// Encode command flags.
	encAddSpecials  bool
	encParseSpecial bool
	encOutput       string
	encCount        bool
	encCountOnly    bool
	encMetrics      bool
)

// newEncodeCmd creates the encode subcommand.
func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode [text]",
		Short: "Encode text to token IDs",
		Long: `Encode text into token IDs using the model's dispatched engine.

If no text is provided as an argument, reads from stdin.

The output format can be:
  - space:   Space-separated token IDs (default)
  - newline: One token ID per line
  - json:    JSON array of token IDs`,
		Example: `  # Encode a simple string
  tokenizer encode --model model.gguf "Hello, world!"

  # Encode from stdin
  echo "Hello, world!" | tokenizer encode --model model.gguf

  # Encode without bos/eos
  tokenizer encode --model model.gguf --add-specials=false "Raw text"

  # Output as JSON
  tokenizer encode --model model.gguf --output json "Hello"

  # Show only the token count
  tokenizer encode --model model.gguf --count-only "Hello"`,
		RunE: runEncode,
	}

	cmd.Flags().BoolVar(&encAddSpecials, "add-specials", true, "Prepend/append bos/eos per the model's configuration")
	cmd.Flags().BoolVar(&encParseSpecial, "parse-special", false, "Split input on special-token text before encoding")
	cmd.Flags().StringVarP(&encOutput, "output", "o", "space", "Output format: space, newline, json")
	cmd.Flags().BoolVar(&encCount, "count", false, "Show token count with output")
	cmd.Flags().BoolVar(&encCountOnly, "count-only", false, "Show only token count (no tokens)")
	cmd.Flags().BoolVar(&encMetrics, "metrics", false, "Show performance metrics")

	return cmd
}

func runEncode(_ *cobra.Command, args []string) error {
	if err := requireModelPath(); err != nil {
		return err
	}

	var startTime time.Time
	if encMetrics {
		startTime = time.Now()
	}

	tok, err := tokenizer.Open(modelPath)
	if err != nil {
		return fmt.Errorf("failed to open model: %w", err)
	}

	var text string
	var inputBytes int
	if len(args) > 0 {
		text = strings.Join(args, " ")
		inputBytes = len(text)
	} else {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimRight(string(raw), "\n")
		inputBytes = len(text)
	}

	tokens, err := tok.EncodeWithOptions(text, tokenizer.EncodeOptions{
		AddSpecialTokens: encAddSpecials,
		ParseSpecial:     encParseSpecial,
	})
	if err != nil {
		return fmt.Errorf("tokenization error: %w", err)
	}

	var encodeDuration time.Duration
	if encMetrics {
		encodeDuration = time.Since(startTime)
	}

	if encCountOnly {
		switch encOutput {
		case "json":
			data, err := json.Marshal(map[string]int{"count": len(tokens)})
			if err != nil {
				return fmt.Errorf("failed to marshal count: %w", err)
			}
			fmt.Println(string(data))
		default:
			fmt.Println(len(tokens))
		}
		return nil
	}

	switch encOutput {
	case "json":
		output := map[string]interface{}{"tokens": tokens}
		if encCount {
			output["count"] = len(tokens)
		}
		if encMetrics {
			output["metrics"] = map[string]interface{}{
				"latency":     encodeDuration.String(),
				"input_bytes": inputBytes,
			}
		}
		data, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(data))
	case "newline":
		if encCount {
			fmt.Printf("count: %d\n", len(tokens))
		}
		for _, token := range tokens {
			fmt.Println(token)
		}
	case "space":
		if encCount {
			fmt.Printf("count: %d\n", len(tokens))
			fmt.Print("tokens: ")
		}
		for i, token := range tokens {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(token)
		}
		fmt.Println()
	default:
		return fmt.Errorf("unknown output format: %s", encOutput)
	}

	if encMetrics && encOutput != "json" {
		fmt.Println("metrics:")
		fmt.Printf("  latency: %s\n", encodeDuration)
		fmt.Printf("  input_bytes: %d\n", inputBytes)
	}

	return nil
}

// Package tokenizer ties the container reader, vocabulary store, and the
// six tokenization engines together behind one entry point.
//
// # Overview
//
// Open loads a GGUF model file, builds its vocabulary, and selects an
// engine by the model's declared kind:
//
//	llama, mistral, gemma   -> SentencePiece/unigram (spm)
//	gpt2, qwen, qwen2       -> byte-level BPE (bpe)
//	bert, wpm               -> WordPiece (variants/wpm)
//	rwkv                    -> RWKV trie (variants/rwkv)
//	t5, ugm                 -> Unigram-Viterbi (variants/ugm)
//	plamo2                  -> table-driven suffix DP (variants/plamo2)
//
// Every engine implements the same two-method interface, so the façade
// never branches on model kind again after Open.
//
// # Options
//
// Encode/Decode accept a boolean shortcut for the common case (add or skip
// special tokens); EncodeWithOptions/DecodeWithOptions expose the full
// option set, including inline special-token parsing and the three-pass
// whitespace cleanup some model families expect after decode.
package tokenizer

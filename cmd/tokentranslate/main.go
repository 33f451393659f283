// tokentranslate inspects cross-tokenizer translation: it checks whether two
// tokenizers are interchangeable and reports how well one vocabulary maps
// onto another.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/gomlx/tokentranslate/hub"
	"github.com/gomlx/tokentranslate/tokenizers/api"
	"github.com/gomlx/tokentranslate/tokenizers/hftokenizer"
	"github.com/gomlx/tokentranslate/tokenizers/sentencepiece"
	"github.com/gomlx/tokentranslate/tokenizers/tiktoken"
)

func main() {
	klog.InitFlags(nil)

	rootCmd := &cobra.Command{
		Use:   "tokentranslate",
		Short: "Inspect cross-tokenizer probability translation",
		Long: "tokentranslate compares tokenizers and reports how one vocabulary\n" +
			"maps onto another. Tokenizers are given as a HuggingFace repo id\n" +
			"(e.g. google/gemma-2-2b-it), a local tokenizer.json or\n" +
			"tokenizer.model path, or a tiktoken encoding name (e.g. cl100k_base).",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(newCompareCmd())
	rootCmd.AddCommand(newMapCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadTokenizer resolves a tokenizer spec to a concrete tokenizer. Local
// paths are detected by extension, tiktoken encodings by name, and anything
// else is treated as a HuggingFace repo id.
func loadTokenizer(spec string) (api.TokenizerWithSpans, error) {
	switch {
	case strings.HasSuffix(spec, ".json"):
		return hftokenizer.NewFromFile(nil, spec)
	case strings.HasSuffix(spec, ".model"):
		return sentencepiece.NewFromFile(spec)
	}
	if tok, err := tiktoken.New(spec); err == nil {
		return tok, nil
	}

	repo := hub.New(spec)
	if repo.HasFile("tokenizer.json") {
		return hftokenizer.New(nil, repo)
	}
	if repo.HasFile("tokenizer.model") {
		return sentencepiece.New(repo)
	}
	return nil, errors.Errorf("repo %q has neither tokenizer.json nor tokenizer.model", spec)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weiqilab/katacore/internal/rewriter"
)

var (
	rewriteBoardSize          int
	rewriteTargetBatch        int
	rewriteCoprocessorProfile bool
	rewriteOutput             string
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [model.onnx]",
	Short: "Pin symbolic dimensions and decompose unsupported operators in an ONNX model",
	Args:  cobra.ExactArgs(1),
	RunE:  runRewrite,
}

func init() {
	rewriteCmd.Flags().IntVar(&rewriteBoardSize, "board-size", 19, "board size substituted for height/width dims (coprocessor profile only)")
	rewriteCmd.Flags().IntVar(&rewriteTargetBatch, "target-batch", 0, "value substituted for the symbolic batch dim (0 = pick the profile default)")
	rewriteCmd.Flags().BoolVar(&rewriteCoprocessorProfile, "coprocessor-profile", false, "rewrite batch_size/height/width wherever they occur, not just dim 0")
	rewriteCmd.Flags().StringVarP(&rewriteOutput, "output", "o", "", "output path (defaults to the input path with .rewritten.onnx appended)")
}

func runRewrite(cmd *cobra.Command, args []string) error {
	inPath := args[0]
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inPath, err)
	}

	result := rewriter.Rewrite(data, rewriter.Options{
		TargetBatch:        rewriteTargetBatch,
		BoardSize:          rewriteBoardSize,
		CoprocessorProfile: rewriteCoprocessorProfile,
	})
	if !result.WasConverted {
		return fmt.Errorf("rewrite: %s could not be parsed as an ONNX model", inPath)
	}

	outPath := rewriteOutput
	if outPath == "" {
		outPath = inPath + ".rewritten.onnx"
	}
	if err := os.WriteFile(outPath, result.Bytes, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	fmt.Printf("wrote %s (softplus=%d, logSoftmax=%d)\n", outPath, result.SoftplusCount, result.LogSoftmaxCount)
	return nil
}

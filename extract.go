package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/raine/carhunt/internal/config"
	"github.com/raine/carhunt/internal/imagedata"
	"github.com/raine/carhunt/internal/llm"
	"github.com/spf13/cobra"
)

var extractTimeout time.Duration

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Extract car details from an image file and print the result",
	Long: `Reads an image file ("-" for stdin), sends it to the vision model and prints
the extraction result as JSON. Exits non-zero when extraction fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 60*time.Second, "timeout for the model call")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	defer setupLogging(cfg)()

	data, err := readImageArg(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), extractTimeout)
	defer cancel()

	extractor, err := newExtractor(ctx, cfg)
	if err != nil {
		return err
	}

	res := extractor.Extract(ctx, imagedata.FromBytes(data, http.DetectContentType(data)))
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New("extraction failed")
	}
	return nil
}

func readImageArg(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

func printResult(w io.Writer, res llm.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

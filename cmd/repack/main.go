// Command repack transcodes telemetry and datalink XML recordings into
// the APXTLM binary container.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/andewhash/apx-repack/repack"
)

var (
	inPath  string
	outPath string
	utcSec  int32
	withJSO bool
)

func run(cmd *cobra.Command, args []string) error {
	if inPath == "" || outPath == "" {
		return fmt.Errorf("both --in and --out are required")
	}

	result, err := repack.File(inPath, outPath,
		repack.WithUTCOffset(utcSec),
		repack.WithJSO(withJSO),
		repack.WithLogger(log.Default()),
	)
	if err != nil {
		return err
	}

	log.Printf("%s: %s repacked: %d fields, %d samples, %d events, %d blobs, %d bytes",
		inPath, result.Dialect, result.Stats.Fields, result.Stats.Samples,
		result.Stats.Events, result.Stats.Blobs, result.Stats.Bytes)

	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "repack --in <path> --out <path>",
		Short:         "Repack telemetry/datalink XML recordings into APXTLM",
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringVar(&inPath, "in", "", "input recording path")
	rootCmd.Flags().StringVar(&outPath, "out", "", "output APXTLM path")
	rootCmd.Flags().Int32Var(&utcSec, "utc", 0, "recording UTC offset in seconds")
	rootCmd.Flags().BoolVar(&withJSO, "with-jso", false, "capture unrecognized sub-trees as embedded JSON")

	if err := rootCmd.Execute(); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

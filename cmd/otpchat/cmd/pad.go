// Copyright © 2019 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"

	"github.com/nomasters/onetimepad"
	"github.com/spf13/cobra"
)

var (
	genParties     []string
	genChunkAmount int
	genChunkSize   int
	genOut         string
)

// generateCmd creates a new pad file
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new one time pad for a set of parties",
	Long: `Generate fills a new pad with random chunks and writes it as JSON. Every
party receives a copy of the same file, the party order decides which chunks
each party encrypts with.

	otpchat generate --parties alice@luna,bob@mars`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pad, err := onetimepad.GeneratePadWithSize(genChunkAmount, genChunkSize, genParties)
		if err != nil {
			return err
		}
		if err := onetimepad.WritePadFile(pad, genOut); err != nil {
			return err
		}
		fmt.Printf(`Finished creation of one time pad %v.
Next steps:
 - Replace the XXX in the generated file name %q by a unique number.
 - Copy the file to all communicating devices and run "otpchat import".
`, pad.Hash(), genOut)
		return nil
	},
}

// importCmd stores a pad file in the local database
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a pad file into the local database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pad, err := onetimepad.ReadPadFile(args[0])
		if err != nil {
			return err
		}
		storage, err := openStorage()
		if err != nil {
			return err
		}
		defer storage.Close()
		if err := onetimepad.ImportPad(storage, pad); err != nil {
			return err
		}
		fmt.Println(pad.Hash())
		for i, p := range pad.Parties() {
			fmt.Printf("  %d: %v\n", i, p)
		}
		return nil
	},
}

// padsCmd lists imported pads
var padsCmd = &cobra.Command{
	Use:   "pads",
	Short: "List imported pads",
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, err := openStorage()
		if err != nil {
			return err
		}
		defer storage.Close()
		hashes, err := onetimepad.ListPads(storage)
		if err != nil {
			return err
		}
		for _, h := range hashes {
			pad, err := onetimepad.LoadPad(storage, h)
			if err != nil {
				return err
			}
			fmt.Printf("%v  %v  %d x %d bytes  %v\n", h, pad.CreationTime(), pad.ChunkAmount(), pad.ChunkSize(), pad.Parties())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(padsCmd)

	generateCmd.Flags().StringSliceVar(&genParties, "parties", nil, "comma separated name@machine parties, in stride order")
	generateCmd.Flags().IntVar(&genChunkAmount, "chunks", onetimepad.DefaultChunkAmount, "number of chunks in the pad")
	generateCmd.Flags().IntVar(&genChunkSize, "size", onetimepad.DefaultChunkSize, "bytes per chunk")
	generateCmd.Flags().StringVar(&genOut, "out", onetimepad.DefaultPadFileName, "output file")
	generateCmd.MarkFlagRequired("parties")
}
